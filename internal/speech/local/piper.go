package local

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
)

// piperSampleRate 是 piper 输出的固定采样率。
const piperSampleRate = 22050

// PiperSynth 使用 piper CLI 子进程合成，输出 signed 16-bit LE 单声道 PCM。
type PiperSynth struct {
	binary    string
	modelPath string
	locale    string
}

// NewPiperSynth 创建 piper 合成器。binary 为空时使用 PATH 中的 piper。
// locale 为模型的语言区域，用于音色匹配。
func NewPiperSynth(binary, modelPath, locale string) *PiperSynth {
	if binary == "" {
		binary = "piper"
	}
	return &PiperSynth{binary: binary, modelPath: modelPath, locale: locale}
}

// Name 实现 Synthesizer 接口。
func (p *PiperSynth) Name() string { return "piper" }

// Voices 实现 Synthesizer 接口。一个模型即一个音色。
func (p *PiperSynth) Voices() []Voice {
	name := strings.TrimSuffix(filepath.Base(p.modelPath), ".onnx")
	return []Voice{{Name: name, Locale: p.locale}}
}

// Synthesize 实现 Synthesizer 接口。
func (p *PiperSynth) Synthesize(ctx context.Context, text string, rate float64) (*audio.Buffer, error) {
	logger.Debugf("[local] piper: 正在合成 %d 个字符，模型=%s", len([]rune(text)), p.modelPath)

	cmd := exec.CommandContext(ctx, p.binary, piperArgs(p.modelPath, rate)...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			logger.Warnf("[local] piper stderr: %s", msg)
		}
		return nil, fmt.Errorf("[local] piper 执行失败: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("[local] piper: 未收到音频数据")
	}

	return audio.DecodePCM16(stdout.Bytes(), piperSampleRate)
}

// piperArgs 构造命令行参数；语速通过 length_scale（时长倍率）控制。
func piperArgs(modelPath string, rate float64) []string {
	args := []string{"--model", modelPath, "--output-raw"}
	if rate > 0 && rate != 1 {
		args = append(args, "--length_scale", strconv.FormatFloat(1/rate, 'f', 3, 64))
	}
	return args
}
