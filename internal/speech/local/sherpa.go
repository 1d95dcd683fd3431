package local

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
)

// SherpaConfig 是 sherpa-onnx VITS 离线合成模型配置。
type SherpaConfig struct {
	ModelDir   string // 包含 model.onnx、lexicon.txt、tokens.txt 的目录
	Model      string // 为空时使用 ModelDir/model.onnx
	Lexicon    string
	Tokens     string
	DictDir    string
	RuleFsts   string
	Speakers   int // 多说话人模型的说话人数量，0 视为 1
	SpeakerID  int
	NumThreads int
	Locale     string
}

// SherpaSynth 使用 sherpa-onnx OfflineTts 在进程内合成。
// OfflineTts 不支持并发调用，Synthesize 串行执行。
type SherpaSynth struct {
	mu     sync.Mutex
	tts    *sherpa.OfflineTts
	cfg    SherpaConfig
	closed bool
}

// NewSherpaSynth 加载模型。
func NewSherpaSynth(cfg SherpaConfig) (*SherpaSynth, error) {
	if cfg.Model == "" {
		cfg.Model = filepath.Join(cfg.ModelDir, "model.onnx")
	}
	if cfg.Lexicon == "" {
		cfg.Lexicon = filepath.Join(cfg.ModelDir, "lexicon.txt")
	}
	if cfg.Tokens == "" {
		cfg.Tokens = filepath.Join(cfg.ModelDir, "tokens.txt")
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 2
	}
	if cfg.Speakers <= 0 {
		cfg.Speakers = 1
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Vits.Model = cfg.Model
	config.Model.Vits.Lexicon = cfg.Lexicon
	config.Model.Vits.Tokens = cfg.Tokens
	config.Model.Vits.DictDir = cfg.DictDir
	config.Model.Vits.NoiseScale = 0.667
	config.Model.Vits.NoiseScaleW = 0.8
	config.Model.Vits.LengthScale = 1.0
	config.Model.NumThreads = cfg.NumThreads
	config.Model.Provider = "cpu"
	config.RuleFsts = cfg.RuleFsts
	config.MaxNumSentences = 1

	tts := sherpa.NewOfflineTts(&config)
	if tts == nil {
		return nil, fmt.Errorf("[local] 创建 sherpa 离线合成器失败，模型: %s", cfg.Model)
	}

	logger.Infof("[local] sherpa 离线合成器已加载 (model=%s, threads=%d)", cfg.Model, cfg.NumThreads)
	return &SherpaSynth{tts: tts, cfg: cfg}, nil
}

// Name 实现 Synthesizer 接口。
func (s *SherpaSynth) Name() string { return "sherpa" }

// Voices 实现 Synthesizer 接口。每个说话人为一个音色，名称为说话人编号。
func (s *SherpaSynth) Voices() []Voice {
	voices := make([]Voice, 0, s.cfg.Speakers)
	for i := 0; i < s.cfg.Speakers; i++ {
		voices = append(voices, Voice{Name: strconv.Itoa(i), Locale: s.cfg.Locale})
	}
	return voices
}

// Synthesize 实现 Synthesizer 接口。推理本身不可中断，完成后再检查 ctx。
func (s *SherpaSynth) Synthesize(ctx context.Context, text string, rate float64) (*audio.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("[local] sherpa 合成器已关闭")
	}
	if rate <= 0 {
		rate = 1
	}

	logger.Debugf("[local] sherpa: 正在合成 %d 个字符", len([]rune(text)))
	generated := s.tts.Generate(text, s.cfg.SpeakerID, float32(rate))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if generated == nil || len(generated.Samples) == 0 {
		return nil, fmt.Errorf("[local] sherpa: 未生成音频")
	}

	return &audio.Buffer{
		SampleRate: generated.SampleRate,
		Channels:   1,
		Samples:    generated.Samples,
	}, nil
}

// Close 释放底层 sherpa-onnx 资源。
func (s *SherpaSynth) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	sherpa.DeleteOfflineTts(s.tts)
	s.tts = nil
}
