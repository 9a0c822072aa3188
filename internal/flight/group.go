// Package flight coordinates concurrent generation requests so that at most
// one generation runs per key, with all concurrent callers sharing the
// outcome. Generations run on a context detached from their callers, so a
// caller giving up never aborts work that other callers are waiting on.
package flight

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/repodigest/internal/report"
)

// DefaultGenerationTimeout bounds how long a single detached generation may
// run before every waiter receives ErrGenerationTimeout.
const DefaultGenerationTimeout = 5 * time.Minute

// call is one in-flight generation. Its result is published exactly once by
// closing done.
type call[V any] struct {
	done   chan struct{}
	result fn.Result[V]
}

// Group deduplicates generations by key. The zero value is not usable; use
// NewGroup.
type Group[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]

	timeout time.Duration
	log     *slog.Logger
}

// GroupOption is a functional option for NewGroup.
type GroupOption[V any] func(*Group[V])

// WithTimeout overrides the generation deadline.
func WithTimeout[V any](d time.Duration) GroupOption[V] {
	return func(g *Group[V]) {
		g.timeout = d
	}
}

// NewGroup creates a Group.
func NewGroup[V any](log *slog.Logger, opts ...GroupOption[V]) *Group[V] {
	if log == nil {
		log = slog.Default()
	}

	g := &Group[V]{
		calls:   make(map[string]*call[V]),
		timeout: DefaultGenerationTimeout,
		log:     log.With("component", "flight"),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Do returns the result of running generate under key. If a generation for
// key is already in flight, the caller waits for its outcome instead of
// starting another; the returned leader flag is true only for the caller
// that actually started the generation.
//
// The generation itself runs on a context derived from ctx's values but not
// its cancellation, bounded by the group's timeout. Cancelling ctx releases
// only this caller: it returns ctx.Err() while the generation keeps running
// for everyone else. Outcomes, success or failure, are broadcast to all
// waiters and then forgotten, so a failed generation is retried by the next
// request rather than poisoning the key.
func (g *Group[V]) Do(ctx context.Context, key string,
	generate func(context.Context) (V, error)) (V, bool, error) {

	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		v, err := g.wait(ctx, c)
		return v, false, err
	}

	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	go g.run(ctx, key, c, generate)

	v, err := g.wait(ctx, c)
	return v, true, err
}

// InFlight reports whether a generation for key is currently running.
func (g *Group[V]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.calls[key]
	return ok
}

// run executes the generation on a detached context and broadcasts the
// outcome. The context keeps the leader's values but not its cancellation.
func (g *Group[V]) run(ctx context.Context, key string, c *call[V],
	generate func(context.Context) (V, error)) {

	genCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), g.timeout,
	)
	defer cancel()

	start := time.Now()
	v, err := generate(genCtx)

	// A generation that failed after running out the deadline surfaces
	// as a timeout to every waiter, whatever shape the underlying
	// failure took. A success that squeaked in at the deadline stands.
	if err != nil && errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		err = report.ErrGenerationTimeout
	}

	if err != nil {
		g.log.Warn("Generation failed",
			"key", key, "elapsed", time.Since(start), "err", err,
		)
		c.result = fn.Err[V](err)
	} else {
		c.result = fn.Ok(v)
	}

	// Drop the entry before waking waiters: a request arriving after
	// the broadcast starts a fresh generation instead of observing a
	// stale call.
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	close(c.done)
}

// wait blocks until the call completes or the waiter's own context ends.
func (g *Group[V]) wait(ctx context.Context, c *call[V]) (V, error) {
	select {
	case <-c.done:
		return c.result.Unpack()

	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
