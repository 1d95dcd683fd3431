package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech"
)

// DefaultResumeDelay 是朗读开始后检查引擎是否卡在暂停状态的延迟。
const DefaultResumeDelay = 250 * time.Millisecond

// Backend 把 Engine 的回调式接口包装为 speech.Handle。
type Backend struct {
	engine      Engine
	resumeDelay time.Duration

	mu      sync.Mutex
	current *speech.Handle
}

// NewBackend 创建本地后端；resumeDelay <= 0 使用 DefaultResumeDelay。
func NewBackend(engine Engine, resumeDelay time.Duration) *Backend {
	if resumeDelay <= 0 {
		resumeDelay = DefaultResumeDelay
	}
	return &Backend{engine: engine, resumeDelay: resumeDelay}
}

// Available 报告本地引擎能否使用。
func (b *Backend) Available() bool {
	return b != nil && b.engine != nil && b.engine.Available()
}

// Speak 朗读 req，立即返回句柄。
// 引擎的取消类错误（canceled / interrupted）以 ErrCanceled 结束句柄，其他错误以 ErrPlaybackFailed 结束。
// onEnd、onError 可为 nil，它们在句柄结束之后调用。
func (b *Backend) Speak(req speech.Request, onEnd func(), onError func(*EngineError)) (*speech.Handle, error) {
	if !b.Available() {
		return nil, speech.ErrEngineUnsupported
	}

	// 引擎是共享的，先清掉任何残留的朗读
	b.engine.Cancel()

	u := &Utterance{Text: req.Text, Locale: req.Locale, Rate: req.Rate}
	voices := b.engine.Voices()
	if v, ok := SelectVoice(voices, req.Locale); ok {
		u.Voice = v.Name
		u.Locale = v.Locale
		logger.Debugf("[local] 选用音色 %s (%s)", v.Name, v.Locale)
	} else {
		logger.Debugf("[local] 没有匹配 %s 的音色（已加载 %d 个），使用引擎默认", req.Locale, len(voices))
	}

	var h *speech.Handle
	h = speech.NewHandle(func() {
		b.mu.Lock()
		live := b.current == h
		b.mu.Unlock()
		if live {
			b.engine.Cancel()
		}
	})

	u.OnEnd = func() {
		h.Resolve(nil)
		b.release(h)
		if onEnd != nil {
			onEnd()
		}
	}
	u.OnError = func(e *EngineError) {
		if e.IsCancellation() {
			logger.Debugf("[local] 朗读被取消: %v", e)
			h.Resolve(speech.ErrCanceled)
		} else {
			logger.Warnf("[local] 朗读失败: %v", e)
			h.Resolve(fmt.Errorf("%w: %w", speech.ErrPlaybackFailed, e))
		}
		b.release(h)
		if onError != nil {
			onError(e)
		}
	}

	b.mu.Lock()
	b.current = h
	b.mu.Unlock()

	b.engine.Speak(u)
	time.AfterFunc(b.resumeDelay, func() { b.checkResume(h) })
	return h, nil
}

// Start 朗读 req；ctx 取消时取消本次朗读。
func (b *Backend) Start(ctx context.Context, req speech.Request) (*speech.Handle, error) {
	h, err := b.Speak(req, nil, nil)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.Done():
		}
	}()
	return h, nil
}

// checkResume 处理部分引擎开始朗读后停在暂停状态的情况。
func (b *Backend) checkResume(h *speech.Handle) {
	select {
	case <-h.Done():
		return
	default:
	}
	b.mu.Lock()
	live := b.current == h
	b.mu.Unlock()
	if live && b.engine.Paused() {
		logger.Debugf("[local] 引擎处于暂停状态，恢复朗读")
		b.engine.Resume()
	}
}

func (b *Backend) release(h *speech.Handle) {
	b.mu.Lock()
	if b.current == h {
		b.current = nil
	}
	b.mu.Unlock()
}
