package geo

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSuperseded = errors.New("geo: superseded by a newer request")

// Debouncer runs only the last of a burst of calls sharing a key.
type Debouncer struct {
	delay time.Duration

	mu   sync.Mutex
	seq  uint64
	gens map[string]uint64
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, gens: make(map[string]uint64)}
}

// Do waits for the quiet period, then runs fn unless another Do with the
// same key arrived meanwhile.
func Do[T any](ctx context.Context, d *Debouncer, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	gen := d.bump(key)
	defer d.release(key, gen)

	if d.delay > 0 {
		t := time.NewTimer(d.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
	if !d.current(key, gen) {
		return zero, ErrSuperseded
	}
	return fn(ctx)
}

func (d *Debouncer) bump(key string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.gens[key] = d.seq
	return d.seq
}

func (d *Debouncer) current(key string, gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[key] == gen
}

func (d *Debouncer) release(key string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gens[key] == gen {
		delete(d.gens, key)
	}
}
