package speech

import "sync"

// Handle 是一次播放的统一等待句柄。
// 云端（设备播放）与本地（引擎回调）两种完成方式都归一到 Done/Err。
type Handle struct {
	once   sync.Once
	done   chan struct{}
	err    error
	cancel func()
}

// NewHandle 创建句柄；cancel 在 Cancel 时调用，用于拆除底层播放，可为 nil。
func NewHandle(cancel func()) *Handle {
	return &Handle{done: make(chan struct{}), cancel: cancel}
}

// Resolve 设置结束原因并关闭 Done，只有第一次调用生效。
// 返回 false 表示句柄早已结束（迟到的回调）。
func (h *Handle) Resolve(err error) bool {
	resolved := false
	h.once.Do(func() {
		h.err = err
		close(h.done)
		resolved = true
	})
	return resolved
}

// Cancel 拆除底层播放并以 ErrCanceled 结束句柄。
// 拆除本身可能在之后才真正完成，但句柄立即结束。
func (h *Handle) Cancel() {
	if h.Resolve(ErrCanceled) && h.cancel != nil {
		h.cancel()
	}
}

// Done 在播放结束后关闭。
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err 返回结束原因：nil 为正常结束，ErrCanceled 为预期取消，其他为真实失败。
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Stream 是可被等待和停止的底层播放过程，例如 audio.Stream。
type Stream interface {
	Done() <-chan struct{}
	Err() error
	Stop()
}

// Watch 把底层 Stream 包装为 Handle。
// mapErr 用于把底层结束原因转换为统一错误，可为 nil。
func Watch(s Stream, mapErr func(error) error) *Handle {
	h := NewHandle(s.Stop)
	go func() {
		<-s.Done()
		err := s.Err()
		if mapErr != nil {
			err = mapErr(err)
		}
		h.Resolve(err)
	}()
	return h
}
