// Package simctx carries the per-run state shared by every stage of the
// simulation: the seeded random source, the caller's context and the abort flag.
package simctx

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
)

// Context is threaded through every long-running loop of a run.
type Context struct {
	ctx  context.Context
	rng  *rand.Rand
	seed int64

	aborted atomic.Bool
	mu      sync.Mutex
	reason  string
}

// New creates a run context. A nil ctx is treated as context.Background.
func New(ctx context.Context, seed int64) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		ctx:  ctx,
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Background returns a context with no cancellation, mostly for tests.
func Background(seed int64) *Context {
	return New(context.Background(), seed)
}

// Seed returns the seed the random source was created with.
func (c *Context) Seed() int64 { return c.seed }

// Ctx returns the underlying context.Context.
func (c *Context) Ctx() context.Context { return c.ctx }

// Rand exposes the shared random source. All stochastic stages must draw
// from it so that a fixed seed reproduces a run exactly.
func (c *Context) Rand() *rand.Rand { return c.rng }

// Uniform draws from [0,1).
func (c *Context) Uniform() float64 { return c.rng.Float64() }

// UniformIn draws from [a,b).
func (c *Context) UniformIn(a, b float64) float64 {
	return a + (b-a)*c.rng.Float64()
}

// Abort flags the run as failed. Only the first reason is kept.
func (c *Context) Abort(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted.Load() {
		return
	}
	c.reason = reason
	c.aborted.Store(true)
}

// Aborted reports whether Abort has been called.
func (c *Context) Aborted() bool { return c.aborted.Load() }

// Reason returns the first abort reason, or "" if the run was not aborted.
func (c *Context) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Stopped reports whether loops should exit at their next boundary.
func (c *Context) Stopped() bool {
	if c.aborted.Load() {
		return true
	}
	return c.ctx.Err() != nil
}

// Err returns the cancellation error of the underlying context, if any.
func (c *Context) Err() error { return c.ctx.Err() }
