package remote

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech"
)

const defaultEdgeVoice = "zh-CN-YunxiNeural"

// EdgeProvider 使用微软 Edge TTS 合成 MP3，再用 go-mp3 解码为 PCM16。
// 无需凭据，但依赖网络。
type EdgeProvider struct {
	voice string
}

// NewEdgeProvider 创建 Edge TTS 服务。
func NewEdgeProvider(voice string) *EdgeProvider {
	if voice == "" {
		voice = defaultEdgeVoice
	}
	return &EdgeProvider{voice: voice}
}

// Name 实现 Provider 接口。
func (e *EdgeProvider) Name() string { return "edge" }

// Voice 实现 Provider 接口。
func (e *EdgeProvider) Voice() string { return e.voice }

// Configured 实现 Provider 接口。
func (e *EdgeProvider) Configured() bool { return true }

// Synthesize 实现 Provider 接口。
func (e *EdgeProvider) Synthesize(ctx context.Context, req speech.Request) (Payload, error) {
	logger.Debugf("[edge] 正在合成 %d 个字符，语音=%s", len([]rune(req.Text)), e.voice)

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(e.voice))
	if err != nil {
		return Payload{}, fmt.Errorf("[edge] 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return Payload{}, fmt.Errorf("[edge] 开始流式合成失败: %w", err)
	}

	// Stream() 返回的 map 中，type=="audio" 的条目携带 MP3 数据
	var mp3Buf bytes.Buffer
	for msg := range ch {
		if err := ctx.Err(); err != nil {
			// 继续排空 channel，避免生产方阻塞
			go func() {
				for range ch {
				}
			}()
			return Payload{}, err
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	if mp3Buf.Len() == 0 {
		return Payload{}, fmt.Errorf("[edge] 未收到音频数据")
	}

	pcm, rate, err := audio.DecodeMP3(mp3Buf.Bytes())
	if err != nil {
		return Payload{}, err
	}

	return Payload{Data: pcm, Encoding: EncodingPCM16, SampleRate: rate}, nil
}
