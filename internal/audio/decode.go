package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// RemoteSampleRate 是云端合成返回的 PCM16 固定采样率。
const RemoteSampleRate = 24000

// pcm16Scale 为归一化除数。
// 注意 int16 正向最大值为 32767，因此结果范围是 [-1.0, 0.99997]，不对称，按原样保留。
const pcm16Scale = 32768.0

// ErrDecode 表示音频负载格式错误。
var ErrDecode = errors.New("audio decode failed")

// Buffer 是解码后的单声道 float32 样本，一次合成请求产生一个。
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Duration 返回按采样率计算的播放时长。
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// Decode 将 base64 编码的小端 PCM16 负载解码为 Buffer。
func Decode(payload []byte, sampleRate int) (*Buffer, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: 负载为空", ErrDecode)
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(raw, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 解码失败: %v", ErrDecode, err)
	}
	return DecodePCM16(raw[:n], sampleRate)
}

// DecodePCM16 将原始小端 PCM16 字节转换为 Buffer。
// 样本数为 len(raw)/2，末尾多出的单个字节直接丢弃。
func DecodePCM16(raw []byte, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: 非法采样率 %d", ErrDecode, sampleRate)
	}
	n := len(raw) / 2
	if n == 0 {
		return nil, fmt.Errorf("%w: 没有完整的样本（%d 字节）", ErrDecode, len(raw))
	}

	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(raw[2*i]) | int16(raw[2*i+1])<<8
		samples[i] = float32(s) / pcm16Scale
	}

	return &Buffer{
		SampleRate: sampleRate,
		Channels:   1,
		Samples:    samples,
	}, nil
}
