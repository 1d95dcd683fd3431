package playback

import (
	"sync"

	"github.com/iabetor/daoreader/internal/logger"
)

// State 表示朗读会话的当前状态。
type State int

const (
	// StateIdle：空闲，没有会话。
	StateIdle State = iota
	// StateLoadingAudio：正在等待云端合成。
	StateLoadingAudio
	// StatePlaying：正在播放（云端音频或本地引擎）。
	StatePlaying
	// StateError：会话失败，随后立即回到 Idle。
	StateError
)

var stateNames = [...]string{
	"Idle",
	"LoadingAudio",
	"Playing",
	"Error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
	}
}

// SetOnChange 注册状态变化时的回调函数。
// 回调在状态锁释放后执行，可以调用 Current。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。只有合法的转换才会生效：
//
//	Idle         → LoadingAudio （开始云端合成）
//	Idle         → Playing      （仅本地引擎）
//	LoadingAudio → Playing      （云端音频开始播放或已回退到本地）
//	LoadingAudio → Error        （合成失败）
//	Playing      → Error        （播放中途失败）
//
// 任何状态都可以转换到 Idle（停止、播放结束或错误恢复）。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()

	if !validTransition(sm.current, to) {
		from := sm.current
		sm.mu.Unlock()
		logger.Warnf("[state] 非法转换 %s → %s", from, to)
		return false
	}

	from := sm.current
	sm.current = to
	fn := sm.onChange
	sm.mu.Unlock()

	if from == to {
		return true
	}
	logger.Debugf("[state] %s → %s", from, to)
	if fn != nil {
		fn(from, to)
	}
	return true
}

// ForceIdle 无条件重置状态为 Idle。
func (sm *StateMachine) ForceIdle() {
	sm.mu.Lock()
	from := sm.current
	sm.current = StateIdle
	fn := sm.onChange
	sm.mu.Unlock()

	if from != StateIdle {
		logger.Debugf("[state] 强制重置 %s → Idle", from)
		if fn != nil {
			fn(from, StateIdle)
		}
	}
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateLoadingAudio || to == StatePlaying
	case StateLoadingAudio:
		return to == StatePlaying || to == StateError
	case StatePlaying:
		return to == StateError
	}
	return false
}
