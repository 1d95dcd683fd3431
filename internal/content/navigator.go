package content

import "sync"

// Navigator 在 [Min, Max] 范围内移动当前章节，越界时停在边界而不是循环。
type Navigator struct {
	Min, Max int

	mu      sync.Mutex
	current int
}

// NewNavigator 创建导航器，start 会被限制在范围内。
func NewNavigator(first, last, start int) *Navigator {
	if last < first {
		last = first
	}
	n := &Navigator{Min: first, Max: last}
	n.current = n.clamp(start)
	return n
}

// Current 返回当前章节号。
func (n *Navigator) Current() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Next 前进一章，返回新的章节号以及是否发生了变化。
func (n *Navigator) Next() (int, bool) { return n.move(1) }

// Prev 后退一章。
func (n *Navigator) Prev() (int, bool) { return n.move(-1) }

// Select 跳转到指定章节。
func (n *Navigator) Select(ch int) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.clamp(ch)
	changed := next != n.current
	n.current = next
	return next, changed
}

func (n *Navigator) move(delta int) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := n.clamp(n.current + delta)
	changed := next != n.current
	n.current = next
	return next, changed
}

func (n *Navigator) clamp(ch int) int {
	switch {
	case ch < n.Min:
		return n.Min
	case ch > n.Max:
		return n.Max
	default:
		return ch
	}
}
