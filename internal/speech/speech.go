// Package speech 定义两种合成后端（云端与本地引擎）共用的请求、结果与播放句柄。
package speech

import (
	"strings"

	"github.com/iabetor/daoreader/internal/audio"
)

const (
	// DefaultLocale 是朗读古文的默认语言区域。
	DefaultLocale = "zh-CN"
	// DefaultRate 略慢于正常语速，适合古文。
	DefaultRate = 0.85
)

// Request 是一次朗读请求，发出后不再修改（按值传递）。
type Request struct {
	Text   string
	Locale string
	Rate   float64
}

// NewRequest 构造请求并填充默认值，文本为空时返回 ErrNoContent。
func NewRequest(text, locale string, rate float64) (Request, error) {
	if strings.TrimSpace(text) == "" {
		return Request{}, ErrNoContent
	}
	if locale == "" {
		locale = DefaultLocale
	}
	if rate <= 0 {
		rate = DefaultRate
	}
	return Request{Text: text, Locale: locale, Rate: rate}, nil
}

// Kind 标识后端类型。
type Kind int

const (
	KindRemote Kind = iota
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Status 是云端合成结果的标签。
type Status int

const (
	// StatusOK 合成并解码成功。
	StatusOK Status = iota
	// StatusUnavailable 云端不可用，调用方应改用本地引擎重试一次。
	StatusUnavailable
	// StatusFailed 终止性失败（如解码错误），不再回退。
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result 是云端合成的带标签结果：Ok(buffer) | Unavailable | Failed。
type Result struct {
	Status Status
	Buffer *audio.Buffer
	Err    error
}

// OK 构造成功结果。
func OK(buf *audio.Buffer) Result { return Result{Status: StatusOK, Buffer: buf} }

// Unavailable 构造回退信号。
func Unavailable(err error) Result { return Result{Status: StatusUnavailable, Err: err} }

// Failed 构造终止性失败。
func Failed(err error) Result { return Result{Status: StatusFailed, Err: err} }
