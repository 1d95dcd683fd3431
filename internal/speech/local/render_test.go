package local

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/speech"
)

type fakeSynth struct {
	err   error
	block bool
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Voices() []Voice { return []Voice{{Name: "f1", Locale: "zh-CN"}} }

func (f *fakeSynth) Synthesize(ctx context.Context, text string, rate float64) (*audio.Buffer, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &audio.Buffer{SampleRate: 22050, Channels: 1, Samples: []float32{0.1, 0.2}}, nil
}

// fakeStream 在 finish 或 Stop 时结束。
type fakeStream struct {
	mu     sync.Mutex
	done   chan struct{}
	once   sync.Once
	err    error
	paused bool
}

func newFakeStream() *fakeStream { return &fakeStream{done: make(chan struct{})} }

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *fakeStream) Stop() { s.finish(audio.ErrStopped) }

func (s *fakeStream) Pause() error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Resume() error {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

type fakeOutput struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
	started chan *fakeStream
}

func newFakeOutput() *fakeOutput { return &fakeOutput{started: make(chan *fakeStream, 4)} }

func (o *fakeOutput) Start(buf *audio.Buffer) (Stream, error) {
	if o.err != nil {
		return nil, o.err
	}
	s := newFakeStream()
	o.mu.Lock()
	o.streams = append(o.streams, s)
	o.mu.Unlock()
	o.started <- s
	return s, nil
}

func (o *fakeOutput) waitStarted(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-o.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not started")
		return nil
	}
}

func speakAsync(e Engine, text string) (<-chan struct{}, *bool, **EngineError) {
	done := make(chan struct{})
	ended := new(bool)
	failed := new(*EngineError)
	e.Speak(&Utterance{
		Text:    text,
		Rate:    1,
		OnEnd:   func() { *ended = true; close(done) },
		OnError: func(ee *EngineError) { *failed = ee; close(done) },
	})
	return done, ended, failed
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("utterance did not finish")
	}
}

func TestRenderEngine_PlaysToEnd(t *testing.T) {
	out := newFakeOutput()
	e := NewRenderEngine(&fakeSynth{}, out)

	done, ended, failed := speakAsync(e, "道生一")
	out.waitStarted(t).finish(nil)
	waitClosed(t, done)

	if !*ended || *failed != nil {
		t.Errorf("expected OnEnd, got ended=%v err=%v", *ended, *failed)
	}
}

func TestRenderEngine_ErrorCodes(t *testing.T) {
	tests := []struct {
		name  string
		synth *fakeSynth
		out   *fakeOutput
		want  ErrorCode
	}{
		{"synthesis", &fakeSynth{err: errors.New("model missing")}, newFakeOutput(), CodeSynthesisFailed},
		{"device", &fakeSynth{}, &fakeOutput{err: errors.New("device busy")}, CodeAudioBusy},
	}
	for _, tt := range tests {
		e := NewRenderEngine(tt.synth, tt.out)
		done, ended, failed := speakAsync(e, "道生一")
		waitClosed(t, done)
		if *ended || *failed == nil || (*failed).Code != tt.want {
			t.Errorf("%s: expected %s, got ended=%v err=%v", tt.name, tt.want, *ended, *failed)
		}
	}
}

func TestRenderEngine_CancelDuringSynthesis(t *testing.T) {
	e := NewRenderEngine(&fakeSynth{block: true}, newFakeOutput())
	done, _, failed := speakAsync(e, "道生一")
	e.Cancel()
	waitClosed(t, done)
	if *failed == nil || (*failed).Code != CodeCanceled {
		t.Errorf("expected canceled, got %v", *failed)
	}
}

func TestRenderEngine_InterruptedByNextSpeak(t *testing.T) {
	out := newFakeOutput()
	e := NewRenderEngine(&fakeSynth{}, out)

	firstDone, _, firstErr := speakAsync(e, "道生一")
	first := out.waitStarted(t)

	secondDone, secondEnded, _ := speakAsync(e, "一生二")
	waitClosed(t, firstDone)
	if *firstErr == nil || (*firstErr).Code != CodeInterrupted {
		t.Errorf("expected interrupted, got %v", *firstErr)
	}
	if first.Err() != audio.ErrStopped {
		t.Errorf("first stream should be stopped")
	}

	out.waitStarted(t).finish(nil)
	waitClosed(t, secondDone)
	if !*secondEnded {
		t.Error("second utterance should end normally")
	}
}

func TestRenderEngine_PauseResume(t *testing.T) {
	out := newFakeOutput()
	e := NewRenderEngine(&fakeSynth{}, out)

	done, _, _ := speakAsync(e, "道生一")
	s := out.waitStarted(t)

	// 设备被外部挂起；流在 Start 返回后才登记到 job 上
	_ = s.Pause()
	deadline := time.Now().Add(2 * time.Second)
	for !e.Paused() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !e.Paused() {
		t.Fatal("expected engine to report paused")
	}
	e.Resume()
	if e.Paused() {
		t.Error("expected engine to resume")
	}
	s.finish(nil)
	waitClosed(t, done)
}

func TestRenderEngine_WithBackend(t *testing.T) {
	out := newFakeOutput()
	b := NewBackend(NewRenderEngine(&fakeSynth{}, out), time.Hour)

	req, _ := speech.NewRequest("道生一", "zh-CN", 1)
	h, err := b.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	out.waitStarted(t)
	h.Cancel()
	if err := waitHandle(t, h); !errors.Is(err, speech.ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}
}

func TestRenderEngine_Unavailable(t *testing.T) {
	e := NewRenderEngine(nil, nil)
	if e.Available() || e.Voices() != nil {
		t.Fatal("engine without synthesizer should be unavailable")
	}
}

func TestPiperArgs(t *testing.T) {
	tests := []struct {
		rate float64
		want []string
	}{
		{1, []string{"--model", "m.onnx", "--output-raw"}},
		{0, []string{"--model", "m.onnx", "--output-raw"}},
		{0.8, []string{"--model", "m.onnx", "--output-raw", "--length_scale", "1.250"}},
		{2, []string{"--model", "m.onnx", "--output-raw", "--length_scale", "0.500"}},
	}
	for _, tt := range tests {
		if got := piperArgs("m.onnx", tt.rate); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("piperArgs(%v) = %v, want %v", tt.rate, got, tt.want)
		}
	}

	p := NewPiperSynth("", "/models/zh_CN-huayan-medium.onnx", "zh-CN")
	if v := p.Voices(); len(v) != 1 || v[0].Name != "zh_CN-huayan-medium" {
		t.Errorf("unexpected piper voices: %+v", v)
	}
}
