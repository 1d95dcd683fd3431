package local

import (
	"context"
	"errors"
	"sync"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
)

// Synthesizer 把文本离线合成为完整的音频。
type Synthesizer interface {
	Name() string
	Voices() []Voice
	Synthesize(ctx context.Context, text string, rate float64) (*audio.Buffer, error)
}

// Stream 是播放流，*audio.Stream 满足该接口。
// 输出设备可能被外部挂起，Paused 与 Resume 供恢复检查使用。
type Stream interface {
	Done() <-chan struct{}
	Err() error
	Stop()
	Resume() error
	Paused() bool
}

// Output 开始播放一段音频。
type Output interface {
	Start(buf *audio.Buffer) (Stream, error)
}

// PlayerOutput 把 *audio.Player 适配为 Output。
func PlayerOutput(p *audio.Player) Output { return playerOutput{p} }

type playerOutput struct{ p *audio.Player }

func (o playerOutput) Start(buf *audio.Buffer) (Stream, error) {
	s, err := o.p.Start(buf)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RenderEngine 先用 Synthesizer 合成整段音频，再交给扬声器播放。
type RenderEngine struct {
	synth Synthesizer
	out   Output

	mu  sync.Mutex
	job *renderJob
}

type renderJob struct {
	cancel context.CancelFunc
	stream Stream
	code   ErrorCode
}

// NewRenderEngine 创建合成加播放的本地引擎。
func NewRenderEngine(synth Synthesizer, out Output) *RenderEngine {
	return &RenderEngine{synth: synth, out: out}
}

// Available 实现 Engine 接口。
func (e *RenderEngine) Available() bool { return e.synth != nil && e.out != nil }

// Voices 实现 Engine 接口。
func (e *RenderEngine) Voices() []Voice {
	if e.synth == nil {
		return nil
	}
	return e.synth.Voices()
}

// Speak 实现 Engine 接口。
func (e *RenderEngine) Speak(u *Utterance) {
	if !e.Available() {
		u.fail(CodeEngineUnavailable, errors.New("未配置合成器或播放设备"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &renderJob{cancel: cancel}

	e.mu.Lock()
	if e.job != nil {
		e.stopLocked(CodeInterrupted)
	}
	e.job = job
	e.mu.Unlock()

	go e.run(ctx, job, u)
}

func (e *RenderEngine) run(ctx context.Context, job *renderJob, u *Utterance) {
	defer job.cancel()

	buf, err := e.synth.Synthesize(ctx, u.Text, u.Rate)
	if code, stopped := e.stoppedCode(job); stopped {
		u.fail(code, nil)
		return
	}
	if err != nil {
		e.finish(job)
		u.fail(CodeSynthesisFailed, err)
		return
	}

	stream, err := e.out.Start(buf)
	if err != nil {
		e.finish(job)
		u.fail(CodeAudioBusy, err)
		return
	}

	e.mu.Lock()
	if job.code != "" {
		code := job.code
		e.mu.Unlock()
		stream.Stop()
		u.fail(code, nil)
		return
	}
	job.stream = stream
	e.mu.Unlock()

	logger.Debugf("[local] %s 合成完成，开始播放 %v", e.synth.Name(), buf.Duration())
	<-stream.Done()

	if code, stopped := e.stoppedCode(job); stopped {
		u.fail(code, nil)
		return
	}
	e.finish(job)
	if err := stream.Err(); err != nil {
		u.fail(CodeAudioBusy, err)
		return
	}
	u.end()
}

// stoppedCode 返回 job 被主动结束时的错误码。
func (e *RenderEngine) stoppedCode(job *renderJob) (ErrorCode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return job.code, job.code != ""
}

func (e *RenderEngine) finish(job *renderJob) {
	e.mu.Lock()
	if e.job == job {
		e.job = nil
	}
	e.mu.Unlock()
}

// Cancel 实现 Engine 接口。
func (e *RenderEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job != nil {
		e.stopLocked(CodeCanceled)
	}
}

func (e *RenderEngine) stopLocked(code ErrorCode) {
	job := e.job
	e.job = nil
	job.code = code
	job.cancel()
	if job.stream != nil {
		job.stream.Stop()
	}
}

// Paused 实现 Engine 接口。
func (e *RenderEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job != nil && e.job.stream != nil && e.job.stream.Paused()
}

// Resume 实现 Engine 接口。
func (e *RenderEngine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job != nil && e.job.stream != nil {
		if err := e.job.stream.Resume(); err != nil {
			logger.Warnf("[local] %v", err)
		}
	}
}
