package reader

import (
	"fmt"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/config"
	"github.com/iabetor/daoreader/internal/database"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech/local"
	"github.com/iabetor/daoreader/internal/speech/remote"
)

// buildRemote 按配置创建云端后端。provider 为 none 时返回 nil。
func buildRemote(cfg config.RemoteConfig) (*remote.Backend, *database.DB, error) {
	var (
		provider remote.Provider
		err      error
	)
	switch cfg.Provider {
	case "gemini":
		provider = remote.NewGeminiProvider(remote.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			Voice:   cfg.Gemini.Voice,
			BaseURL: cfg.Gemini.BaseURL,
			Prompt:  cfg.Gemini.Prompt,
		})
	case "tencent":
		provider, err = remote.NewTencentProvider(remote.TencentConfig{
			SecretID:  cfg.Tencent.SecretID,
			SecretKey: cfg.Tencent.SecretKey,
			VoiceType: cfg.Tencent.VoiceType,
			Region:    cfg.Tencent.Region,
		})
		if err != nil {
			return nil, nil, err
		}
	case "edge":
		provider = remote.NewEdgeProvider(cfg.Edge.Voice)
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("[reader] 未知的云端服务: %s", cfg.Provider)
	}

	if !provider.Configured() {
		logger.Warnf("[reader] 云端服务 %s 缺少凭据，仅使用本地引擎", provider.Name())
		return nil, nil, nil
	}

	var (
		cache *remote.Cache
		db    *database.DB
	)
	if cfg.Cache.Enabled {
		db, err = database.Open(cfg.Cache.Path)
		if err != nil {
			// 缓存不可用不影响朗读
			logger.Warnf("[reader] 打开音频缓存失败: %v", err)
		} else {
			cache = remote.NewCache(db, cfg.Cache.MaxEntries)
		}
	}

	return remote.NewBackend(remote.Config{
		Provider: provider,
		Cache:    cache,
		Timeout:  cfg.Timeout(),
	}), db, nil
}

// buildLocal 按配置创建本地引擎。返回的 closer 用于释放合成器资源，可为 nil。
func buildLocal(cfg config.LocalConfig, locale string, player *audio.Player) (*local.Backend, func()) {
	var (
		engine local.Engine
		closer func()
	)

	switch cfg.Engine {
	case "render":
		if player == nil {
			logger.Warnf("[reader] 没有播放设备，离线合成引擎不可用")
			return nil, nil
		}
		var synth local.Synthesizer
		switch cfg.Render.Synth {
		case "sherpa":
			s, err := local.NewSherpaSynth(local.SherpaConfig{
				ModelDir:   cfg.Render.Sherpa.ModelDir,
				DictDir:    cfg.Render.Sherpa.DictDir,
				RuleFsts:   cfg.Render.Sherpa.RuleFsts,
				Speakers:   cfg.Render.Sherpa.Speakers,
				SpeakerID:  cfg.Render.Sherpa.SpeakerID,
				NumThreads: cfg.Render.Sherpa.NumThreads,
				Locale:     locale,
			})
			if err != nil {
				logger.Warnf("[reader] %v", err)
				return nil, nil
			}
			synth, closer = s, s.Close
		default:
			synth = local.NewPiperSynth(cfg.Render.Piper.Binary, cfg.Render.Piper.ModelPath, locale)
		}
		engine = local.NewRenderEngine(synth, local.PlayerOutput(player))
		logger.Infof("[reader] 本地引擎: %s 合成 + 扬声器播放", synth.Name())
	default:
		engine = local.NewCommandEngine(cfg.Command.Binary, cfg.Command.Voice)
		logger.Infof("[reader] 本地引擎: 系统语音命令")
	}

	return local.NewBackend(engine, cfg.ResumeDelay()), closer
}
