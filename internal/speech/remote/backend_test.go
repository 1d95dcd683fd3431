package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/database"
	"github.com/iabetor/daoreader/internal/speech"
)

// fakeProvider 是可编排结果的 Provider。
type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	payload    Payload
	err        error
	delay      time.Duration
	calls      int
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Voice() string    { return "v1" }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) Synthesize(ctx context.Context, req speech.Request) (Payload, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Payload{}, ctx.Err()
		}
	}
	return f.payload, f.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pcmPayload(samples ...int16) Payload {
	raw := audio.Int16ToBytes(samples)
	return Payload{
		Data:       []byte(base64.StdEncoding.EncodeToString(raw)),
		Encoding:   EncodingBase64PCM16,
		SampleRate: audio.RemoteSampleRate,
	}
}

func testRequest(t *testing.T) speech.Request {
	t.Helper()
	req, err := speech.NewRequest("道生一，一生二", "zh-CN", 0.85)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	return req
}

func TestBackend_NotConfigured(t *testing.T) {
	tests := []struct {
		name    string
		backend *Backend
	}{
		{"nil backend", nil},
		{"nil provider", NewBackend(Config{})},
		{"missing credential", NewBackend(Config{Provider: &fakeProvider{}})},
	}
	for _, tt := range tests {
		if tt.backend.Configured() {
			t.Errorf("%s: expected not configured", tt.name)
		}
		res := tt.backend.Synthesize(context.Background(), testRequest(t))
		if res.Status != speech.StatusUnavailable {
			t.Errorf("%s: status = %s, want unavailable", tt.name, res.Status)
		}
		if !errors.Is(res.Err, speech.ErrNotConfigured) {
			t.Errorf("%s: expected ErrNotConfigured, got %v", tt.name, res.Err)
		}
	}
}

func TestBackend_Success(t *testing.T) {
	p := &fakeProvider{configured: true, payload: pcmPayload(0, 16384, -32768)}
	b := NewBackend(Config{Provider: p})

	res := b.Synthesize(context.Background(), testRequest(t))
	if res.Status != speech.StatusOK {
		t.Fatalf("status = %s, want ok (err=%v)", res.Status, res.Err)
	}
	if len(res.Buffer.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(res.Buffer.Samples))
	}
	if res.Buffer.SampleRate != audio.RemoteSampleRate {
		t.Errorf("sample rate = %d, want %d", res.Buffer.SampleRate, audio.RemoteSampleRate)
	}
}

func TestBackend_ProviderErrorIsUnavailable(t *testing.T) {
	p := &fakeProvider{configured: true, err: errors.New("connection reset")}
	b := NewBackend(Config{Provider: p})

	res := b.Synthesize(context.Background(), testRequest(t))
	if res.Status != speech.StatusUnavailable {
		t.Fatalf("status = %s, want unavailable", res.Status)
	}
	if !errors.Is(res.Err, speech.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", res.Err)
	}
}

func TestBackend_CredentialRejectedStaysDistinct(t *testing.T) {
	p := &fakeProvider{configured: true, err: speech.ErrCredentialRejected}
	b := NewBackend(Config{Provider: p})

	res := b.Synthesize(context.Background(), testRequest(t))
	if res.Status != speech.StatusUnavailable {
		t.Fatalf("status = %s, want unavailable", res.Status)
	}
	if !errors.Is(res.Err, speech.ErrCredentialRejected) {
		t.Errorf("expected ErrCredentialRejected, got %v", res.Err)
	}
}

func TestBackend_DecodeErrorIsFailed(t *testing.T) {
	p := &fakeProvider{configured: true, payload: Payload{Encoding: EncodingBase64PCM16}}
	b := NewBackend(Config{Provider: p})

	res := b.Synthesize(context.Background(), testRequest(t))
	if res.Status != speech.StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if !errors.Is(res.Err, audio.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", res.Err)
	}
}

func TestBackend_TimeoutIsUnavailable(t *testing.T) {
	p := &fakeProvider{configured: true, payload: pcmPayload(1, 2), delay: time.Second}
	b := NewBackend(Config{Provider: p, Timeout: 20 * time.Millisecond})

	res := b.Synthesize(context.Background(), testRequest(t))
	if res.Status != speech.StatusUnavailable {
		t.Fatalf("status = %s, want unavailable", res.Status)
	}
}

func TestBackend_CallerCancelIsFailedCanceled(t *testing.T) {
	p := &fakeProvider{configured: true, payload: pcmPayload(1, 2), delay: time.Second}
	b := NewBackend(Config{Provider: p})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := b.Synthesize(ctx, testRequest(t))
	if res.Status != speech.StatusFailed || !errors.Is(res.Err, speech.ErrCanceled) {
		t.Fatalf("expected failed/ErrCanceled, got %s/%v", res.Status, res.Err)
	}
}

func TestBackend_CacheSkipsProvider(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("database.Open failed: %v", err)
	}
	defer db.Close()

	p := &fakeProvider{configured: true, payload: pcmPayload(100, -100, 200)}
	b := NewBackend(Config{Provider: p, Cache: NewCache(db, 10)})
	req := testRequest(t)

	first := b.Synthesize(context.Background(), req)
	second := b.Synthesize(context.Background(), req)
	if first.Status != speech.StatusOK || second.Status != speech.StatusOK {
		t.Fatalf("expected ok twice, got %s and %s", first.Status, second.Status)
	}
	if p.Calls() != 1 {
		t.Errorf("expected provider called once, got %d", p.Calls())
	}
	for i := range first.Buffer.Samples {
		if first.Buffer.Samples[i] != second.Buffer.Samples[i] {
			t.Fatalf("cached sample %d differs: %v vs %v", i, first.Buffer.Samples[i], second.Buffer.Samples[i])
		}
	}
}
