package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech"
)

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string
	SecretKey string
	VoiceType int64
	Region    string
}

// TencentProvider 使用腾讯云 TextToVoice 合成，请求 24 kHz PCM 输出（base64 编码）。
type TencentProvider struct {
	client    *tts.Client
	voiceType int64
}

// NewTencentProvider 创建腾讯云 TTS 服务。缺少密钥时返回未配置的实例而不是错误，
// 由启动流程据此选择本地引擎。
func NewTencentProvider(cfg TencentConfig) (*TencentProvider, error) {
	if cfg.VoiceType == 0 {
		cfg.VoiceType = 1001 // 智瑜（女声）
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}
	p := &TencentProvider{voiceType: cfg.VoiceType}

	if strings.TrimSpace(cfg.SecretID) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return p, nil
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tts.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[tencent] 创建腾讯云 TTS 客户端失败: %w", err)
	}
	p.client = client

	logger.Infof("[tencent] 腾讯云 TTS 已初始化 (voice=%d, region=%s)", cfg.VoiceType, cfg.Region)
	return p, nil
}

// Name 实现 Provider 接口。
func (p *TencentProvider) Name() string { return "tencent" }

// Voice 实现 Provider 接口。
func (p *TencentProvider) Voice() string { return strconv.FormatInt(p.voiceType, 10) }

// Configured 实现 Provider 接口。
func (p *TencentProvider) Configured() bool { return p.client != nil }

// Synthesize 实现 Provider 接口。
func (p *TencentProvider) Synthesize(ctx context.Context, req speech.Request) (Payload, error) {
	if !p.Configured() {
		return Payload{}, speech.ErrNotConfigured
	}

	request := tts.NewTextToVoiceRequest()
	request.Text = common.StringPtr(req.Text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(p.voiceType)
	request.Codec = common.StringPtr("pcm")
	request.SampleRate = common.Uint64Ptr(audio.RemoteSampleRate)
	request.Speed = common.Float64Ptr(tencentSpeed(req.Rate))
	request.PrimaryLanguage = common.Int64Ptr(1) // 中文

	logger.Debugf("[tencent] 正在合成 %d 个字符，音色=%d", len([]rune(req.Text)), p.voiceType)

	response, err := p.client.TextToVoiceWithContext(ctx, request)
	if err != nil {
		var sdkErr *sdkerr.TencentCloudSDKError
		if errors.As(err, &sdkErr) && strings.HasPrefix(sdkErr.Code, "AuthFailure") {
			return Payload{}, fmt.Errorf("%w: [tencent] %s", speech.ErrCredentialRejected, sdkErr.Message)
		}
		return Payload{}, fmt.Errorf("[tencent] 合成失败: %w", err)
	}

	if response.Response == nil || response.Response.Audio == nil || *response.Response.Audio == "" {
		return Payload{}, fmt.Errorf("[tencent] 未返回音频数据")
	}

	return Payload{
		Data:       []byte(*response.Response.Audio),
		Encoding:   EncodingBase64PCM16,
		SampleRate: audio.RemoteSampleRate,
	}, nil
}

// tencentSpeed 将语速倍率映射到腾讯云的 Speed 参数。
// 官方刻度：-2=0.6x，-1=0.8x，0=1.0x，1=1.2x，2=1.5x，6=2.5x，按分段线性插值。
func tencentSpeed(rate float64) float64 {
	points := [][2]float64{{0.6, -2}, {0.8, -1}, {1.0, 0}, {1.2, 1}, {1.5, 2}, {2.5, 6}}
	if rate <= points[0][0] {
		return points[0][1]
	}
	for i := 1; i < len(points); i++ {
		lo, hi := points[i-1], points[i]
		if rate <= hi[0] {
			return lo[1] + (rate-lo[0])/(hi[0]-lo[0])*(hi[1]-lo[1])
		}
	}
	return points[len(points)-1][1]
}
