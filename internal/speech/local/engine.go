// Package local 实现本地语音引擎后端：系统命令（say / espeak-ng）或
// 离线合成（piper / sherpa-onnx）加扬声器播放。
package local

import (
	"fmt"
	"sync"
)

// ErrorCode 是引擎报告的错误类别。
type ErrorCode string

const (
	CodeCanceled          ErrorCode = "canceled"
	CodeInterrupted       ErrorCode = "interrupted"
	CodeSynthesisFailed   ErrorCode = "synthesis-failed"
	CodeAudioBusy         ErrorCode = "audio-busy"
	CodeEngineUnavailable ErrorCode = "engine-unavailable"
)

// EngineError 是引擎通过 Utterance.OnError 报告的错误。
type EngineError struct {
	Code ErrorCode
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return "[local] " + string(e.Code)
	}
	return fmt.Sprintf("[local] %s: %v", e.Code, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsCancellation 报告错误是否为预期的取消（被 Cancel 或被新的朗读打断）。
func (e *EngineError) IsCancellation() bool {
	return e != nil && (e.Code == CodeCanceled || e.Code == CodeInterrupted)
}

// Voice 是引擎提供的一个音色。
type Voice struct {
	Name   string
	Locale string
}

// Utterance 是交给引擎的一次朗读。
// 每个 Utterance 恰好触发一次 OnEnd 或 OnError。
type Utterance struct {
	Text   string
	Voice  string // 为空时由引擎按 Locale 选择默认音色
	Locale string
	Rate   float64

	OnEnd   func()
	OnError func(*EngineError)

	once sync.Once
}

// end 触发 OnEnd，与 fail 合计只生效一次。
func (u *Utterance) end() {
	u.once.Do(func() {
		if u.OnEnd != nil {
			u.OnEnd()
		}
	})
}

// fail 触发 OnError，与 end 合计只生效一次。
func (u *Utterance) fail(code ErrorCode, err error) {
	u.once.Do(func() {
		if u.OnError != nil {
			u.OnError(&EngineError{Code: code, Err: err})
		}
	})
}

// Engine 是进程内共享的本地语音引擎。
type Engine interface {
	// Available 报告引擎能否使用。
	Available() bool
	// Voices 返回已加载的音色，加载完成前可能为空。
	Voices() []Voice
	// Speak 开始朗读，立即返回。
	Speak(u *Utterance)
	// Cancel 取消当前朗读，无朗读时为空操作。
	Cancel()
	// Paused 报告引擎是否处于暂停状态。
	Paused() bool
	// Resume 恢复被暂停的朗读。
	Resume()
}
