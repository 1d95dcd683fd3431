package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice   = "Kore"
	defaultGeminiPrompt  = "请用舒缓、庄重的语气朗读下面的古文："
)

// GeminiConfig Gemini TTS 配置。
type GeminiConfig struct {
	APIKey  string
	Model   string
	Voice   string
	BaseURL string
	Prompt  string // 朗读风格提示，拼接在正文之前
}

// GeminiProvider 通过 generateContent 接口（AUDIO 输出模态）合成语音。
// 返回 base64 编码的 24 kHz 单声道 PCM16。
type GeminiProvider struct {
	cfg        GeminiConfig
	httpClient *http.Client
}

// NewGeminiProvider 创建 Gemini TTS 服务；超时由 Backend 的 ctx 控制。
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultGeminiVoice
	}
	if cfg.Prompt == "" {
		cfg.Prompt = defaultGeminiPrompt
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GeminiProvider{cfg: cfg, httpClient: &http.Client{}}
}

// Name 实现 Provider 接口。
func (g *GeminiProvider) Name() string { return "gemini" }

// Voice 实现 Provider 接口。
func (g *GeminiProvider) Voice() string { return g.cfg.Voice }

// Configured 实现 Provider 接口。
func (g *GeminiProvider) Configured() bool { return g.cfg.APIKey != "" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		SpeechConfig       struct {
			VoiceConfig struct {
				PrebuiltVoiceConfig struct {
					VoiceName string `json:"voiceName"`
				} `json:"prebuiltVoiceConfig"`
			} `json:"voiceConfig"`
		} `json:"speechConfig"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Synthesize 实现 Provider 接口。
func (g *GeminiProvider) Synthesize(ctx context.Context, req speech.Request) (Payload, error) {
	if !g.Configured() {
		return Payload{}, speech.ErrNotConfigured
	}

	var body geminiRequest
	body.Contents = []geminiContent{{Parts: []geminiPart{{Text: g.cfg.Prompt + req.Text}}}}
	body.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	body.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = g.cfg.Voice

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Payload{}, fmt.Errorf("[gemini] 序列化请求体失败: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return Payload{}, fmt.Errorf("[gemini] 创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.cfg.APIKey)

	logger.Debugf("[gemini] 正在合成 %d 个字符，音色=%s", len([]rune(req.Text)), g.cfg.Voice)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Payload{}, fmt.Errorf("[gemini] 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Payload{}, fmt.Errorf("%w: [gemini] 状态码 %d: %s", speech.ErrCredentialRejected, resp.StatusCode, msg)
		}
		return Payload{}, fmt.Errorf("[gemini] API 返回状态码 %d: %s", resp.StatusCode, msg)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Payload{}, fmt.Errorf("[gemini] 解析响应失败: %w", err)
	}

	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			rate := rateFromMime(p.InlineData.MimeType)
			if rate != 0 && rate != audio.RemoteSampleRate {
				logger.Warnf("[gemini] 返回的采样率为 %d Hz（预期 %d Hz），按返回值解码: %s",
					rate, audio.RemoteSampleRate, p.InlineData.MimeType)
			}
			return Payload{
				Data:       []byte(p.InlineData.Data),
				Encoding:   EncodingBase64PCM16,
				SampleRate: rate,
			}, nil
		}
	}
	return Payload{}, fmt.Errorf("[gemini] 响应中没有音频数据")
}

// rateFromMime 从 "audio/L16;codec=pcm;rate=24000" 中取出采样率，取不到时返回 0（解码时按 24000 处理）。
func rateFromMime(mime string) int {
	for _, field := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok || k != "rate" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
