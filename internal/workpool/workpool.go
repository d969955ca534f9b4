// Package workpool keeps CPU-bound and I/O-bound work on separate bounded pools.
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of tasks running at once. The bound is shared by
// every caller of the same Pool.
type Pool struct {
	name string
	size int
	sem  *semaphore.Weighted
}

// New creates a pool with size slots; size <= 0 means runtime.NumCPU().
func New(name string, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		name: name,
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Do runs fn on the calling goroutine once a slot is free.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// ForEach runs fn(ctx, i) for i in [0, n) with at most Size calls in flight.
// The first error cancels the remaining calls and is returned.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	for i := range n {
		if err := p.sem.Acquire(gCtx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			return fn(gCtx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Group runs heterogeneous tasks on the pool and waits for all of them.
type Group struct {
	pool *Pool
	g    *errgroup.Group
	ctx  context.Context
}

// Group starts a task group bound to ctx.
func (p *Pool) Group(ctx context.Context) *Group {
	g, gCtx := errgroup.WithContext(ctx)
	return &Group{pool: p, g: g, ctx: gCtx}
}

// Go schedules fn on the pool.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.g.Go(func() error {
		return g.pool.Do(g.ctx, fn)
	})
}

// Wait blocks until every task finished and returns the first error.
func (g *Group) Wait() error {
	return g.g.Wait()
}

// Pools holds the two pools the engine schedules on.
type Pools struct {
	Compute *Pool
	IO      *Pool
}

// NewPools creates a compute pool sized computeWorkers (NumCPU when <= 0)
// and an I/O pool sized ioWorkers.
func NewPools(computeWorkers, ioWorkers int) *Pools {
	return &Pools{
		Compute: New("compute", computeWorkers),
		IO:      New("io", ioWorkers),
	}
}

// Default returns pools sized for the current machine.
func Default() *Pools {
	return NewPools(runtime.NumCPU(), 4)
}
