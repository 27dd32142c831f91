// Package keypool rotates interchangeable provider credentials when a
// provider reports it is over quota.
package keypool

import (
	"errors"
	"strings"
	"sync"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
)

var (
	// ErrExhaustedPool is returned when a pool was built with no usable keys.
	ErrExhaustedPool = errors.New("keypool: no credentials configured")
	// ErrAllExhausted is returned by Do when every key was rate limited.
	ErrAllExhausted = errors.New("keypool: all credentials rate limited")
)

// Pool is an ordered list of credentials with a cursor on the active one.
// The cursor only moves through Rotate and wraps around.
type Pool struct {
	name string

	mu       sync.Mutex
	keys     []string
	idx      int
	onRotate func(name string, index int)
}

// New builds a pool named after its provider. Blank keys are dropped.
func New(name string, keys []string) *Pool {
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	return &Pool{name: name, keys: clean}
}

func (p *Pool) Name() string { return p.name }

// Len is the number of usable keys and the attempt budget for one call.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Index reports the cursor position.
func (p *Pool) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

// OnRotate registers a hook invoked after every rotation.
func (p *Pool) OnRotate(fn func(name string, index int)) {
	p.mu.Lock()
	p.onRotate = fn
	p.mu.Unlock()
}

// Current returns the active key.
func (p *Pool) Current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", ErrExhaustedPool
	}
	return p.keys[p.idx], nil
}

// Rotate advances to the next key, wrapping to the first after the last.
// Callers bound their own retries to Len attempts.
func (p *Pool) Rotate() {
	p.mu.Lock()
	if len(p.keys) == 0 {
		p.mu.Unlock()
		return
	}
	p.idx = (p.idx + 1) % len(p.keys)
	idx, n, hook := p.idx, len(p.keys), p.onRotate
	p.mu.Unlock()

	logging.Warnw("provider rate limited, switching key", "provider", p.name, "key_index", idx+1, "key_count", n)
	if hook != nil {
		hook(p.name, idx)
	}
}
