package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/incident-bridge/runtime"
)

var ErrPoolClosed = errors.New("worker pool closed")

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Pool is a fixed set of workers, each holding one runtime attachment for
// its whole life and running jobs in it one at a time.
type Pool struct {
	exec    *runtime.Executor
	logger  *zap.Logger
	jobs    chan *task
	wg      sync.WaitGroup
	workers int
	mu      sync.RWMutex
	closed  bool
}

type PoolOption func(*Pool)

func WithPoolLogger(l *zap.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool starts workers goroutines; queue is the number of jobs that may
// wait for a free worker.
func NewPool(exec *runtime.Executor, workers, queue int, opts ...PoolOption) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}

	p := &Pool{
		exec:    exec,
		logger:  zap.NewNop(),
		jobs:    make(chan *task, queue),
		workers: workers,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) Workers() int {
	return p.workers
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Submit queues fn and waits for it to finish. If ctx ends first Submit
// returns ctx.Err(); a job already queued still runs to completion.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	t := &task{
		ctx:  context.WithoutCancel(ctx),
		fn:   fn,
		done: make(chan error, 1),
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	select {
	case p.jobs <- t:
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}
	p.mu.RUnlock()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the pool and returns its value.
func Do[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Submit(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Close stops accepting jobs, drains the queue and releases the workers'
// attachments.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	_, att, err := p.exec.Handle().Attach(context.Background())
	if err != nil {
		log.Error("attach failed", zap.Error(err))
		for t := range p.jobs {
			t.done <- err
		}
		return
	}
	defer func() {
		log.Debug("worker detaching", zap.Strings("services", att.Services()))
		att.Release()
	}()
	log.Debug("worker attached", zap.Uint64("attachment", att.ID()))

	for t := range p.jobs {
		t.done <- p.execute(log, att, t)
	}
}

func (p *Pool) execute(log *zap.Logger, att *runtime.Attachment, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return p.exec.RunAttached(t.ctx, att, func(ctx context.Context, _ *runtime.Attachment) error {
		return t.fn(ctx)
	})
}
