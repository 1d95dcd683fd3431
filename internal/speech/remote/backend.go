package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech"
)

// DefaultTimeout 是单次云端合成的默认超时。
const DefaultTimeout = 30 * time.Second

// Config 云端后端配置。
type Config struct {
	Provider Provider      // 为 nil 表示未配置云端
	Cache    *Cache        // 可选
	Timeout  time.Duration // 0 使用 DefaultTimeout
}

// Backend 封装云端合成：缓存查找 → 服务请求 → 解码。
type Backend struct {
	provider Provider
	cache    *Cache
	timeout  time.Duration
}

// NewBackend 创建云端后端。
func NewBackend(cfg Config) *Backend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Backend{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		timeout:  timeout,
	}
}

// Configured 报告云端凭据是否齐全。启动时据此决定是否启用云端路径。
func (b *Backend) Configured() bool {
	return b != nil && b.provider != nil && b.provider.Configured()
}

// Name 返回服务名。
func (b *Backend) Name() string {
	if b == nil || b.provider == nil {
		return "none"
	}
	return b.provider.Name()
}

// Synthesize 合成 req 并返回带标签的结果。
// 服务错误与缺少凭据都返回 StatusUnavailable（应回退本地）；解码错误返回 StatusFailed。
func (b *Backend) Synthesize(ctx context.Context, req speech.Request) speech.Result {
	if !b.Configured() {
		return speech.Unavailable(speech.ErrNotConfigured)
	}

	name := b.provider.Name()
	key := Key(name, b.provider.Voice(), req)
	if b.cache != nil {
		buf, ok, err := b.cache.Lookup(key)
		if err != nil {
			logger.Warnf("[remote] 读取缓存失败: %v", err)
		}
		if ok {
			logger.Debugf("[remote] 命中缓存 (%s, %d 个样本)", name, len(buf.Samples))
			return speech.OK(buf)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	payload, err := b.provider.Synthesize(callCtx, req)
	if err != nil {
		return b.classify(ctx, name, err)
	}

	buf, err := payload.Decode()
	if err != nil {
		logger.Errorf("[remote] %s 返回的音频无法解码: %v", name, err)
		return speech.Failed(err)
	}
	logger.Infof("[remote] %s 合成完成: %d 个字符 → %v 音频，耗时 %v",
		name, len([]rune(req.Text)), buf.Duration(), time.Since(start).Round(time.Millisecond))

	if b.cache != nil {
		if err := b.cache.Store(key, name, buf); err != nil {
			logger.Warnf("[remote] %v", err)
		}
	}
	return speech.OK(buf)
}

// classify 将服务错误映射为结果标签。
func (b *Backend) classify(ctx context.Context, name string, err error) speech.Result {
	switch {
	case errors.Is(err, audio.ErrDecode):
		logger.Errorf("[remote] %s 返回的音频无法解码: %v", name, err)
		return speech.Failed(err)
	case ctx.Err() != nil:
		// 调用方已停止，会话作废
		return speech.Failed(fmt.Errorf("%w: %v", speech.ErrCanceled, ctx.Err()))
	case errors.Is(err, speech.ErrCredentialRejected):
		logger.Errorf("[remote] %s 凭据被拒绝，请检查配置（本次改用本地引擎）: %v", name, err)
		return speech.Unavailable(err)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warnf("[remote] %s 请求超时 (%v)，改用本地引擎", name, b.timeout)
		return speech.Unavailable(fmt.Errorf("%w: %v", speech.ErrBackendUnavailable, err))
	default:
		logger.Warnf("[remote] %s 合成失败，改用本地引擎: %v", name, err)
		if !errors.Is(err, speech.ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %v", speech.ErrBackendUnavailable, err)
		}
		return speech.Unavailable(err)
	}
}
