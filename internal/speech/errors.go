package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContent 表示请求文本为空。
	ErrNoContent = errors.New("no content to speak")

	// ErrBackendUnavailable 表示云端后端未配置或调用失败，触发一次本地回退。
	ErrBackendUnavailable = errors.New("remote backend unavailable")
	// ErrNotConfigured 表示缺少云端凭据。
	ErrNotConfigured = fmt.Errorf("%w: credential not configured", ErrBackendUnavailable)
	// ErrCredentialRejected 表示凭据被服务端拒绝，属于持续性配置错误而非瞬时故障。
	ErrCredentialRejected = fmt.Errorf("%w: credential rejected", ErrBackendUnavailable)

	// ErrEngineUnsupported 表示当前运行环境没有可用的本地语音引擎。
	ErrEngineUnsupported = errors.New("local speech engine unsupported")
	// ErrPlaybackFailed 表示回退后依然失败。
	ErrPlaybackFailed = errors.New("playback failed")
	// ErrCanceled 表示预期内的取消（被新会话顶替或主动停止），不应提示用户。
	ErrCanceled = errors.New("playback canceled")
)
