package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iabetor/daoreader/internal/audio"
	"github.com/iabetor/daoreader/internal/logger"
	"github.com/iabetor/daoreader/internal/speech"
)

func TestGemini_Synthesize(t *testing.T) {
	pcm := audio.Int16ToBytes([]int16{0, 8192, -8192, 32767})
	encoded := base64.StdEncoding.EncodeToString(pcm)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("unexpected api key header: %s", r.Header.Get("x-goog-api-key"))
		}

		var body geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if got := body.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
			t.Errorf("unexpected modalities: %v", got)
		}
		if got := body.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Kore" {
			t.Errorf("voice = %q, want Kore", got)
		}
		if len(body.Contents) != 1 || !strings.HasSuffix(body.Contents[0].Parts[0].Text, "道可道") {
			t.Errorf("unexpected contents: %+v", body.Contents)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":%q}}]}}]}`, encoded)
	}))
	defer server.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "test-key", Model: "test-model", BaseURL: server.URL + "/"})
	if !p.Configured() {
		t.Fatal("expected configured provider")
	}

	req, _ := speech.NewRequest("道可道", "", 0)
	payload, err := p.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if payload.Encoding != EncodingBase64PCM16 || payload.SampleRate != 24000 {
		t.Errorf("unexpected payload header: encoding=%d rate=%d", payload.Encoding, payload.SampleRate)
	}

	buf, err := payload.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(buf.Samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(buf.Samples))
	}
	if buf.Samples[1] != 0.25 {
		t.Errorf("sample[1] = %v, want 0.25", buf.Samples[1])
	}
}

func TestGemini_CredentialRejected(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			fmt.Fprint(w, `{"error":{"message":"API key not valid"}}`)
		}))

		p := NewGeminiProvider(GeminiConfig{APIKey: "bad", BaseURL: server.URL})
		req, _ := speech.NewRequest("上善若水", "", 0)
		_, err := p.Synthesize(context.Background(), req)
		server.Close()

		if !errors.Is(err, speech.ErrCredentialRejected) {
			t.Errorf("status %d: expected ErrCredentialRejected, got %v", code, err)
		}
	}
}

func TestGemini_ServerErrorIsNotCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "key", BaseURL: server.URL})
	req, _ := speech.NewRequest("上善若水", "", 0)
	_, err := p.Synthesize(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if errors.Is(err, speech.ErrCredentialRejected) {
		t.Errorf("503 should not be a credential error: %v", err)
	}
}

func TestGemini_NoAudioInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`)
	}))
	defer server.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "key", BaseURL: server.URL})
	req, _ := speech.NewRequest("上善若水", "", 0)
	if _, err := p.Synthesize(context.Background(), req); err == nil {
		t.Fatal("expected error when response has no audio")
	}
}

func TestGemini_NotConfigured(t *testing.T) {
	p := NewGeminiProvider(GeminiConfig{APIKey: "   "})
	if p.Configured() {
		t.Fatal("blank key should not be configured")
	}
	req, _ := speech.NewRequest("上善若水", "", 0)
	if _, err := p.Synthesize(context.Background(), req); !errors.Is(err, speech.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRateFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want int
	}{
		{"audio/L16;codec=pcm;rate=24000", 24000},
		{"audio/L16; rate=16000", 16000},
		{"audio/L16;codec=pcm", 0},
		{"audio/L16;rate=abc", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := rateFromMime(tt.mime); got != tt.want {
			t.Errorf("rateFromMime(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestGemini_WarnsOnUnexpectedSampleRate(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := logger.L
	logger.L = zap.New(core).Sugar()
	defer func() { logger.L = prev }()

	encoded := base64.StdEncoding.EncodeToString(audio.Int16ToBytes([]int16{1, 2}))
	for _, tt := range []struct {
		mime  string
		rate  int
		warns int
	}{
		{"audio/L16;codec=pcm;rate=24000", 24000, 0},
		{"audio/L16;codec=pcm", 0, 0},
		{"audio/L16;codec=pcm;rate=16000", 16000, 1},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":%q,"data":%q}}]}}]}`, tt.mime, encoded)
		}))
		p := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: server.URL})
		req, _ := speech.NewRequest("道可道", "", 0)

		before := logs.Len()
		payload, err := p.Synthesize(context.Background(), req)
		server.Close()
		if err != nil {
			t.Fatalf("%s: Synthesize failed: %v", tt.mime, err)
		}
		if payload.SampleRate != tt.rate {
			t.Errorf("%s: rate = %d, want %d", tt.mime, payload.SampleRate, tt.rate)
		}
		if got := logs.Len() - before; got != tt.warns {
			t.Errorf("%s: %d warnings, want %d", tt.mime, got, tt.warns)
		}
	}
}
