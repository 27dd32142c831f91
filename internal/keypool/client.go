package keypool

import (
	"context"
	"fmt"
	"sync"
)

// Factory hands out a provider SDK client built for the pool's current key.
// Clients are rebuilt only when the key changes, so the rotation policy does
// not depend on how any particular SDK is constructed.
type Factory[T any] struct {
	pool  *Pool
	build func(key string) (T, error)

	mu     sync.Mutex
	key    string
	client T
	built  bool
}

func NewFactory[T any](pool *Pool, build func(key string) (T, error)) *Factory[T] {
	return &Factory[T]{pool: pool, build: build}
}

func (f *Factory[T]) Pool() *Pool { return f.pool }

// Client returns the client for the active key.
func (f *Factory[T]) Client() (T, error) {
	var zero T
	key, err := f.pool.Current()
	if err != nil {
		return zero, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.built && f.key == key {
		return f.client, nil
	}
	c, err := f.build(key)
	if err != nil {
		return zero, fmt.Errorf("keypool: build %s client: %w", f.pool.Name(), err)
	}
	f.key, f.client, f.built = key, c, true
	return c, nil
}

// Rotate moves the underlying pool to its next key.
func (f *Factory[T]) Rotate() { f.pool.Rotate() }

// Do calls fn with the current client. When fn fails and rateLimited reports
// the error as quota-shaped, the pool rotates and fn runs again, up to one
// attempt per key. Other errors are returned unchanged on the spot. When the
// final attempt is still rate limited the result wraps ErrAllExhausted.
func Do[T any](ctx context.Context, f *Factory[T], rateLimited func(error) bool, fn func(context.Context, T) error) error {
	attempts := f.pool.Len()
	if attempts == 0 {
		return ErrExhaustedPool
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := f.Client()
		if err != nil {
			return err
		}
		err = fn(ctx, c)
		if err == nil {
			return nil
		}
		if !rateLimited(err) {
			return err
		}
		lastErr = err
		if attempt < attempts-1 {
			f.Rotate()
		}
	}
	return fmt.Errorf("%w (%s, %d keys): %w", ErrAllExhausted, f.pool.Name(), attempts, lastErr)
}
