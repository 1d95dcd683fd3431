package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/daoreader/internal/logger"
)

// Config 是 daoreader 的顶层配置结构。
type Config struct {
	Speech SpeechConfig `yaml:"speech"`
	Reader ReaderConfig `yaml:"reader"`
	Log    LogConfig    `yaml:"log"`
}

// SpeechConfig 朗读配置。
type SpeechConfig struct {
	Locale string       `yaml:"locale"`
	Rate   float64      `yaml:"rate"` // 语速倍率，1.0 为正常
	Remote RemoteConfig `yaml:"remote"`
	Local  LocalConfig  `yaml:"local"`
}

// RemoteConfig 云端合成配置。
type RemoteConfig struct {
	// Provider 可选 "gemini"、"tencent"、"edge"、"none"
	Provider   string        `yaml:"provider"`
	TimeoutSec int           `yaml:"timeout_sec"`
	Gemini     GeminiConfig  `yaml:"gemini"`
	Tencent    TencentConfig `yaml:"tencent"`
	Edge       EdgeConfig    `yaml:"edge"`
	Cache      CacheConfig   `yaml:"cache"`
}

// Timeout 返回单次请求超时。
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Voice   string `yaml:"voice"`
	BaseURL string `yaml:"base_url"`
	Prompt  string `yaml:"prompt"`
}

type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	VoiceType int64  `yaml:"voice_type"`
	Region    string `yaml:"region"`
}

type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// CacheConfig 云端音频缓存配置。
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"` // SQLite 文件路径
	MaxEntries int    `yaml:"max_entries"`
}

// LocalConfig 本地引擎配置。
type LocalConfig struct {
	// Engine 可选 "command"（say / espeak-ng）或 "render"（piper / sherpa 合成后播放）
	Engine        string        `yaml:"engine"`
	Command       CommandConfig `yaml:"command"`
	Render        RenderConfig  `yaml:"render"`
	ResumeDelayMs int           `yaml:"resume_delay_ms"`
}

// ResumeDelay 返回暂停检查延迟。
func (l LocalConfig) ResumeDelay() time.Duration {
	return time.Duration(l.ResumeDelayMs) * time.Millisecond
}

type CommandConfig struct {
	Binary string `yaml:"binary"` // 为空时按平台选择
	Voice  string `yaml:"voice"`
}

type RenderConfig struct {
	// Synth 可选 "piper" 或 "sherpa"
	Synth  string       `yaml:"synth"`
	Piper  PiperConfig  `yaml:"piper"`
	Sherpa SherpaConfig `yaml:"sherpa"`
}

type PiperConfig struct {
	Binary    string `yaml:"binary"`
	ModelPath string `yaml:"model_path"`
}

type SherpaConfig struct {
	ModelDir   string `yaml:"model_dir"`
	DictDir    string `yaml:"dict_dir"`
	RuleFsts   string `yaml:"rule_fsts"`
	Speakers   int    `yaml:"speakers"`
	SpeakerID  int    `yaml:"speaker_id"`
	NumThreads int    `yaml:"num_threads"`
}

// ReaderConfig 阅读器配置。
type ReaderConfig struct {
	ContentFile  string `yaml:"content_file"` // YAML 章节表
	FirstChapter int    `yaml:"first_chapter"`
	LastChapter  int    `yaml:"last_chapter"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Logger 转换为 logger.Config。
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Level:      l.Level,
		File:       l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	}
}

// Load 读取 YAML 配置文件，展开 ${ENV} 环境变量引用，并填充默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("配置文件 %s 无效: %w", path, err)
	}
	return cfg, nil
}

// Default 返回只包含默认值的配置，用于没有配置文件的情况。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充合理的默认值。
func setDefaults(cfg *Config) {
	if cfg.Speech.Locale == "" {
		cfg.Speech.Locale = "zh-CN"
	}
	if cfg.Speech.Rate == 0 {
		cfg.Speech.Rate = 0.85
	}

	r := &cfg.Speech.Remote
	if r.Provider == "" {
		r.Provider = "gemini"
	}
	r.Provider = strings.ToLower(r.Provider)
	if r.TimeoutSec == 0 {
		r.TimeoutSec = 30
	}
	if r.Edge.Voice == "" {
		r.Edge.Voice = "zh-CN-YunxiNeural"
	}
	if r.Tencent.VoiceType == 0 {
		r.Tencent.VoiceType = 1001
	}
	if r.Tencent.Region == "" {
		r.Tencent.Region = "ap-guangzhou"
	}
	if r.Cache.MaxEntries == 0 {
		r.Cache.MaxEntries = 500
	}
	if r.Cache.Path == "" {
		r.Cache.Path = dataPath("daoreader.db")
	} else {
		r.Cache.Path = expandHome(r.Cache.Path)
	}
	r.Gemini.APIKey = strings.TrimSpace(r.Gemini.APIKey)
	r.Tencent.SecretID = strings.TrimSpace(r.Tencent.SecretID)
	r.Tencent.SecretKey = strings.TrimSpace(r.Tencent.SecretKey)

	l := &cfg.Speech.Local
	if l.Engine == "" {
		l.Engine = "command"
	}
	if l.ResumeDelayMs == 0 {
		l.ResumeDelayMs = 250
	}
	if l.Render.Synth == "" {
		l.Render.Synth = "piper"
	}
	if l.Render.Sherpa.NumThreads == 0 {
		l.Render.Sherpa.NumThreads = 2
	}
	l.Render.Piper.ModelPath = expandHome(l.Render.Piper.ModelPath)
	l.Render.Sherpa.ModelDir = expandHome(l.Render.Sherpa.ModelDir)

	if cfg.Reader.FirstChapter == 0 {
		cfg.Reader.FirstChapter = 1
	}
	if cfg.Reader.LastChapter == 0 {
		cfg.Reader.LastChapter = 81 // 道德经八十一章
	}
	cfg.Reader.ContentFile = expandHome(cfg.Reader.ContentFile)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.File = expandHome(cfg.Log.File)
}

func validate(cfg *Config) error {
	switch cfg.Speech.Remote.Provider {
	case "gemini", "tencent", "edge", "none":
	default:
		return fmt.Errorf("不支持的云端服务: %s", cfg.Speech.Remote.Provider)
	}
	switch cfg.Speech.Local.Engine {
	case "command", "render":
	default:
		return fmt.Errorf("不支持的本地引擎: %s", cfg.Speech.Local.Engine)
	}
	switch cfg.Speech.Local.Render.Synth {
	case "piper", "sherpa":
	default:
		return fmt.Errorf("不支持的离线合成器: %s", cfg.Speech.Local.Render.Synth)
	}
	if cfg.Speech.Rate < 0 {
		return fmt.Errorf("语速不能为负: %v", cfg.Speech.Rate)
	}
	if cfg.Reader.FirstChapter > cfg.Reader.LastChapter {
		return fmt.Errorf("章节范围无效: %d > %d", cfg.Reader.FirstChapter, cfg.Reader.LastChapter)
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

// dataPath 返回 ~/.daoreader 下的文件路径。
func dataPath(name string) string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return filepath.Join(".daoreader-data", name)
	}
	return filepath.Join(home, ".daoreader", name)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return filepath.Join(home, path[2:])
}
