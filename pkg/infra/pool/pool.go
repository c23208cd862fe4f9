// Package pool runs finrouter work on bounded ants goroutine pools: one for
// queries, one for background re-ingestion.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	ErrPoolClosed        = errors.New("worker pool is closed")
	ErrPoolOverload      = errors.New("worker pool is saturated")
	ErrInvalidPoolConfig = errors.New("invalid worker pool config")
)

// Type names a pool.
type Type string

const (
	QueryPool  Type = "query"
	IngestPool Type = "ingest"
)

// Config sizes a pool.
type Config struct {
	Capacity       int
	ExpiryDuration time.Duration
	// Nonblocking 为 true 时池满立即返回 ErrPoolOverload。
	Nonblocking bool
	// MaxBlockingTasks 阻塞模式下的排队上限，0 表示不限。
	MaxBlockingTasks int
}

// DefaultQueryPoolConfig allows 64 concurrent queries and 256 waiting.
func DefaultQueryPoolConfig() *Config {
	return &Config{Capacity: 64, ExpiryDuration: 10 * time.Second, MaxBlockingTasks: 256}
}

// DefaultIngestPoolConfig allows a single rebuild at a time and rejects
// anything submitted while it runs.
func DefaultIngestPoolConfig() *Config {
	return &Config{Capacity: 1, ExpiryDuration: time.Minute, Nonblocking: true}
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Running   int    `json:"running"`
	Submitted int64  `json:"submitted"`
	Completed int64  `json:"completed"`
	Rejected  int64  `json:"rejected"`
	Panics    int64  `json:"panics"`
}

// Pool is an ants pool with task counters.
type Pool struct {
	name string
	ants *ants.Pool

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
	closed    atomic.Bool
}

// NewPool creates a pool. A nil config uses DefaultQueryPoolConfig.
func NewPool(typ Type, cfg *Config) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultQueryPoolConfig()
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidPoolConfig, cfg.Capacity)
	}

	p := &Pool{name: string(typ)}
	ap, err := ants.NewPool(cfg.Capacity,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithNonblocking(cfg.Nonblocking),
		ants.WithMaxBlockingTasks(cfg.MaxBlockingTasks),
		ants.WithPanicHandler(func(v interface{}) {
			p.panics.Add(1)
			logger.Errorw("worker panic recovered", "pool", p.name, "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", typ, err)
	}
	p.ants = ap

	logger.Infow("worker pool created", "pool", p.name, "capacity", cfg.Capacity, "nonblocking", cfg.Nonblocking)
	return p, nil
}

// Name returns the pool type as a string.
func (p *Pool) Name() string { return p.name }

// Cap returns the worker capacity.
func (p *Pool) Cap() int { return p.ants.Cap() }

// Submit queues task. It fails with ErrPoolOverload when a nonblocking pool
// is full or the blocking queue limit is reached.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	err := p.ants.Submit(func() {
		task()
		p.completed.Add(1)
	})
	switch {
	case err == nil:
		p.submitted.Add(1)
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

// Do runs fn on p and waits for its value. If ctx ends first Do returns
// ctx.Err() and fn finishes in the background. A task whose ctx is already
// done when a worker picks it up is skipped.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan T, 1)
	if err := p.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		done <- fn(ctx)
	}); err != nil {
		return zero, err
	}

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Release stops the pool. Later submissions fail with ErrPoolClosed.
func (p *Pool) Release() {
	if p.closed.Swap(true) {
		return
	}
	p.ants.Release()
	logger.Infow("worker pool released", "pool", p.name)
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Capacity:  p.ants.Cap(),
		Running:   p.ants.Running(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}
