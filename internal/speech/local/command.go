package local

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/iabetor/daoreader/internal/logger"
)

// baseWordsPerMinute 是 say 与 espeak-ng 的默认语速，Rate 1.0 对应该值。
const baseWordsPerMinute = 175

type commandKind int

const (
	kindSay commandKind = iota
	kindEspeak
)

// CommandEngine 调用系统语音命令朗读：macOS 上为 say，Linux 上为 espeak-ng。
// 文本经 stdin 传入，命令边合成边播放。
type CommandEngine struct {
	path  string // 空表示命令不存在
	kind  commandKind
	voice string // 配置指定的音色，优先于自动选择

	mu     sync.Mutex
	voices []Voice
	job    *commandJob
}

type commandJob struct {
	u    *Utterance
	cmd  *exec.Cmd
	code ErrorCode // 非空表示被主动结束
}

// NewCommandEngine 创建命令引擎。binary 为空时按平台选择 say 或 espeak-ng。
// 音色列表在后台加载。
func NewCommandEngine(binary, voice string) *CommandEngine {
	if binary == "" {
		binary = "espeak-ng"
		if runtime.GOOS == "darwin" {
			binary = "say"
		}
	}

	e := &CommandEngine{voice: voice, kind: kindEspeak}
	if strings.Contains(filepath.Base(binary), "say") {
		e.kind = kindSay
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		logger.Warnf("[local] 找不到语音命令 %s: %v", binary, err)
		return e
	}
	e.path = path

	go e.loadVoices()
	return e
}

// Available 实现 Engine 接口。
func (e *CommandEngine) Available() bool { return e.path != "" }

// Voices 实现 Engine 接口。
func (e *CommandEngine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Voice(nil), e.voices...)
}

func (e *CommandEngine) loadVoices() {
	var args []string
	if e.kind == kindSay {
		args = []string{"-v", "?"}
	} else {
		args = []string{"--voices"}
	}
	out, err := exec.Command(e.path, args...).Output()
	if err != nil {
		logger.Warnf("[local] 读取音色列表失败: %v", err)
		return
	}

	var voices []Voice
	if e.kind == kindSay {
		voices = parseSayVoices(out)
	} else {
		voices = parseEspeakVoices(out)
	}

	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	logger.Debugf("[local] 已加载 %d 个音色 (%s)", len(voices), filepath.Base(e.path))
}

// Speak 实现 Engine 接口。正在进行的朗读以 interrupted 结束。
func (e *CommandEngine) Speak(u *Utterance) {
	if !e.Available() {
		u.fail(CodeEngineUnavailable, errors.New("语音命令不存在"))
		return
	}

	e.mu.Lock()
	if e.job != nil {
		e.stopLocked(CodeInterrupted)
	}

	cmd := exec.Command(e.path, e.args(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		u.fail(CodeAudioBusy, fmt.Errorf("启动 %s 失败: %w", filepath.Base(e.path), err))
		return
	}
	job := &commandJob{u: u, cmd: cmd}
	e.job = job
	e.mu.Unlock()

	go func() {
		err := cmd.Wait()

		e.mu.Lock()
		if e.job == job {
			e.job = nil
		}
		code := job.code
		e.mu.Unlock()

		switch {
		case code != "":
			u.fail(code, nil)
		case err != nil:
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			u.fail(CodeSynthesisFailed, err)
		default:
			u.end()
		}
	}()
}

// args 构造命令行参数。
func (e *CommandEngine) args(u *Utterance) []string {
	voice := u.Voice
	if e.voice != "" {
		voice = e.voice
	}
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	wpm := strconv.Itoa(int(math.Round(baseWordsPerMinute * rate)))

	if e.kind == kindSay {
		args := []string{"-r", wpm}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		return args
	}

	args := []string{"--stdin", "-s", wpm}
	if voice == "" && u.Locale != "" {
		// espeak-ng 按语言名匹配，例如 "zh"
		voice, _, _ = strings.Cut(normalizeLocale(u.Locale), "-")
	}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	return args
}

// Cancel 实现 Engine 接口。
func (e *CommandEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job != nil {
		e.stopLocked(CodeCanceled)
	}
}

func (e *CommandEngine) stopLocked(code ErrorCode) {
	job := e.job
	e.job = nil
	job.code = code
	if job.cmd.Process != nil {
		_ = job.cmd.Process.Kill()
	}
}

// Paused 实现 Engine 接口。系统命令不支持暂停。
func (e *CommandEngine) Paused() bool { return false }

// Resume 实现 Engine 接口。
func (e *CommandEngine) Resume() {}

// parseSayVoices 解析 `say -v ?` 的输出，例如：
//
//	Tingting            zh_CN    # 你好，我叫婷婷。
//	Bad News            en_US    # The light you see...
func parseSayVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		voices = append(voices, Voice{
			Name:   strings.Join(fields[:len(fields)-1], " "),
			Locale: fields[len(fields)-1],
		})
	}
	return voices
}

// parseEspeakVoices 解析 `espeak-ng --voices` 的表格输出：
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  cmn             --/M      Chinese_(Mandarin) sit/cmn       (zh-cmn 5)(zh 5)
//
// 音色名取 Language 列（可直接用于 -v），附加语言各生成一个别名条目。
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		lang := fields[1]
		voices = append(voices, Voice{Name: lang, Locale: lang})

		if len(fields) < 6 {
			continue
		}
		for _, other := range strings.Split(strings.Join(fields[5:], " "), "(") {
			alias, _, ok := strings.Cut(strings.TrimSpace(other), " ")
			if !ok || alias == "" {
				continue
			}
			voices = append(voices, Voice{Name: lang, Locale: alias})
		}
	}
	return voices
}
