// Package remote 实现云端语音合成后端：调用云服务、解码 PCM16，并在失败时给出回退信号。
package remote

import (
	"context"
	"fmt"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/speech"
)

// Encoding 是云端负载的编码方式。
type Encoding int

const (
	// EncodingBase64PCM16 为 base64 包裹的小端 PCM16。
	EncodingBase64PCM16 Encoding = iota
	// EncodingPCM16 为原始小端 PCM16。
	EncodingPCM16
)

// Payload 是云服务返回的原始音频。
type Payload struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
}

// Decode 按编码方式解码为 Buffer。
func (p Payload) Decode() (*audio.Buffer, error) {
	rate := p.SampleRate
	if rate == 0 {
		rate = audio.RemoteSampleRate
	}
	switch p.Encoding {
	case EncodingBase64PCM16:
		return audio.Decode(p.Data, rate)
	case EncodingPCM16:
		return audio.DecodePCM16(p.Data, rate)
	default:
		return nil, fmt.Errorf("%w: 未知编码 %d", audio.ErrDecode, p.Encoding)
	}
}

// Provider 是一个云端 TTS 服务。
type Provider interface {
	// Name 返回服务名，用于日志与缓存键。
	Name() string
	// Voice 返回当前音色标识。
	Voice() string
	// Configured 报告凭据是否齐全。
	Configured() bool
	// Synthesize 请求合成，可能在网络 I/O 上阻塞。
	Synthesize(ctx context.Context, req speech.Request) (Payload, error)
}
