package passwordhash

import (
	"context"
)

// job is one hash-or-verify unit of work submitted to the pool.
type job struct {
	fn   func() (string, bool, error)
	done chan result
}

type result struct {
	hash string
	ok   bool
	err  error
}

// Pool bounds concurrent Argon2 work so a burst of password-protected
// uploads/unlocks cannot starve the request-handling goroutines of CPU.
type Pool struct {
	jobs chan job
}

// NewPool starts workers goroutines draining a shared job queue. workers
// should be small and bounded, e.g. runtime.GOMAXPROCS(0).
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	p := &Pool{jobs: make(chan job, workers*4)}
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	for j := range p.jobs {
		hash, ok, err := j.fn()
		j.done <- result{hash: hash, ok: ok, err: err}
	}
}

// Hash runs Hash(password) on the pool, respecting ctx cancellation.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	j := job{
		fn: func() (string, bool, error) {
			h, err := Hash(password)
			return h, false, err
		},
		done: make(chan result, 1),
	}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-j.done:
		return r.hash, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Verify runs Verify(password, encoded) on the pool, respecting ctx
// cancellation.
func (p *Pool) Verify(ctx context.Context, password, encoded string) (bool, error) {
	j := job{
		fn: func() (string, bool, error) {
			return "", Verify(password, encoded), nil
		},
		done: make(chan result, 1),
	}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case r := <-j.done:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close stops accepting new work. In-flight jobs already sent to workers
// still complete; callers must not submit after Close.
func (p *Pool) Close() error {
	close(p.jobs)
	return nil
}
