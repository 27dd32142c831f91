package keypool

import (
	"context"
	"errors"
	"testing"
)

var errQuota = errors.New("429")

func isQuota(err error) bool { return errors.Is(err, errQuota) }

func TestEmptyPoolIsUnusable(t *testing.T) {
	p := New("groq", []string{"", "  "})
	if p.Len() != 0 {
		t.Fatalf("blank keys should be dropped, len=%d", p.Len())
	}
	if _, err := p.Current(); !errors.Is(err, ErrExhaustedPool) {
		t.Fatalf("want ErrExhaustedPool, got %v", err)
	}
	p.Rotate() // must not panic
}

func TestRotateIsCyclic(t *testing.T) {
	p := New("groq", []string{"k1", "k2", "k3"})
	first, _ := p.Current()
	seen := map[string]bool{first: true}
	for i := 0; i < p.Len(); i++ {
		p.Rotate()
		k, _ := p.Current()
		if i < p.Len()-1 {
			seen[k] = true
		} else if k != first {
			t.Fatalf("after %d rotations expected %s, got %s", p.Len(), first, k)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected every key visited, saw %v", seen)
	}
}

func TestOnRotateHook(t *testing.T) {
	p := New("gemini", []string{"a", "b"})
	var calls []int
	p.OnRotate(func(name string, idx int) {
		if name != "gemini" {
			t.Errorf("unexpected pool name %q", name)
		}
		calls = append(calls, idx)
	})
	p.Rotate()
	p.Rotate()
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 0 {
		t.Fatalf("unexpected hook calls: %v", calls)
	}
}

func TestFactoryBuildsOncePerKey(t *testing.T) {
	p := New("groq", []string{"k1", "k2"})
	builds := 0
	f := NewFactory(p, func(key string) (string, error) {
		builds++
		return "client-" + key, nil
	})
	for i := 0; i < 3; i++ {
		c, err := f.Client()
		if err != nil || c != "client-k1" {
			t.Fatalf("unexpected client %q err %v", c, err)
		}
	}
	f.Rotate()
	if c, _ := f.Client(); c != "client-k2" {
		t.Fatalf("expected rebuilt client, got %q", c)
	}
	if builds != 2 {
		t.Fatalf("expected 2 builds, got %d", builds)
	}
}

func TestDoRotatesOnRateLimit(t *testing.T) {
	p := New("groq", []string{"k1", "k2", "k3"})
	f := NewFactory(p, func(key string) (string, error) { return key, nil })
	var used []string
	err := Do(context.Background(), f, isQuota, func(_ context.Context, key string) error {
		used = append(used, key)
		if key != "k3" {
			return errQuota
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(used) != 3 || used[2] != "k3" {
		t.Fatalf("unexpected attempts: %v", used)
	}
}

func TestDoStopsAfterOneAttemptPerKey(t *testing.T) {
	p := New("groq", []string{"k1", "k2"})
	f := NewFactory(p, func(key string) (string, error) { return key, nil })
	calls := 0
	err := Do(context.Background(), f, isQuota, func(context.Context, string) error {
		calls++
		return errQuota
	})
	if !errors.Is(err, ErrAllExhausted) || !errors.Is(err, errQuota) {
		t.Fatalf("want ErrAllExhausted wrapping the last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoFailsFastOnOtherErrors(t *testing.T) {
	p := New("groq", []string{"k1", "k2"})
	f := NewFactory(p, func(key string) (string, error) { return key, nil })
	boom := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), f, isQuota, func(context.Context, string) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected single failing attempt, calls=%d err=%v", calls, err)
	}
	if p.Index() != 0 {
		t.Fatalf("non-quota errors must not rotate, index=%d", p.Index())
	}
}
