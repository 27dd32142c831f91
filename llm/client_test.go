package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/georgedobreff/discord-llm-bot/internal/keypool"
)

// providerStub answers like an OpenAI-compatible API. Keys listed in limited
// get a 429, every other key succeeds.
type providerStub struct {
	mu      sync.Mutex
	limited map[string]bool
	status  int
	keys    []string
	content string
}

func (p *providerStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		p.mu.Lock()
		p.keys = append(p.keys, key)
		limited, status := p.limited[key], p.status
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if limited {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"tokens"}}`))
			return
		}
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		switch r.URL.Path {
		case "/chat/completions":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["model"] != "test-model" {
				t.Errorf("unexpected model %v", body["model"])
			}
			resp := map[string]interface{}{
				"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": p.content}}},
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/audio/transcriptions":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("multipart: %v", err)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"text": " Hey Lilly, how's it going?"})
		default:
			http.NotFound(w, r)
		}
	})
}

func (p *providerStub) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func newTestClient(t *testing.T, stub *providerStub, keys ...string) *Client {
	ts := httptest.NewServer(stub.handler(t))
	t.Cleanup(ts.Close)
	return NewClient(keypool.New("groq", keys), ts.URL, "test-model", "whisper-large-v3")
}

func TestCompleteRotatesPastRateLimitedKeys(t *testing.T) {
	stub := &providerStub{limited: map[string]bool{"k1": true, "k2": true}, content: "yes"}
	c := newTestClient(t, stub, "k1", "k2", "k3")

	out, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "yes" {
		t.Fatalf("unexpected content %q", out)
	}
	if got := stub.seen(); strings.Join(got, ",") != "k1,k2,k3" {
		t.Fatalf("unexpected key order %v", got)
	}
}

func TestCompleteExhaustsPool(t *testing.T) {
	stub := &providerStub{limited: map[string]bool{"k1": true, "k2": true}}
	c := newTestClient(t, stub, "k1", "k2")

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("want ErrAllProvidersExhausted, got %v", err)
	}
	if n := len(stub.seen()); n != 2 {
		t.Fatalf("expected one attempt per key, got %d", n)
	}
}

func TestCompleteFailsFastOnServerError(t *testing.T) {
	stub := &providerStub{status: http.StatusInternalServerError}
	c := newTestClient(t, stub, "k1", "k2")

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrCompletionFailed) {
		t.Fatalf("want ErrCompletionFailed, got %v", err)
	}
	if n := len(stub.seen()); n != 1 {
		t.Fatalf("non-quota errors must not retry, got %d requests", n)
	}
}

func TestTranscribeReturnsProviderText(t *testing.T) {
	stub := &providerStub{}
	c := newTestClient(t, stub, "k1")

	path := filepath.Join(t.TempDir(), "u1.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := c.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != " Hey Lilly, how's it going?" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestTranscribeFailsFastWithoutRetry(t *testing.T) {
	stub := &providerStub{status: http.StatusBadRequest}
	c := newTestClient(t, stub, "k1", "k2")

	path := filepath.Join(t.TempDir(), "u1.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := c.Transcribe(context.Background(), path)
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("want ErrTranscriptionFailed, got %v", err)
	}
	if n := len(stub.seen()); n != 1 {
		t.Fatalf("expected a single request, got %d", n)
	}
}

func TestTranscribeExhaustedOnFinalRateLimit(t *testing.T) {
	stub := &providerStub{limited: map[string]bool{"k1": true}}
	c := newTestClient(t, stub, "k1")

	path := filepath.Join(t.TempDir(), "u1.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Transcribe(context.Background(), path); !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("want ErrAllProvidersExhausted, got %v", err)
	}
}
