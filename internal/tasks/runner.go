// Package tasks runs detached side effects off the request path: bounded
// queue, non-blocking submit, per-task timeout, drain on close.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of background work. The context carries the per-task
// timeout; errors are logged, never propagated to a request.
type Task func(ctx context.Context) error

// Runner executes tasks on a single background goroutine. Submitting never
// blocks: when the buffer is full the task is counted as dropped and the
// caller proceeds.
type Runner struct {
	ch      chan Task
	done    chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *zap.Logger

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewRunner starts a Runner with the given buffer and per-task timeout.
func NewRunner(buffer int, timeout time.Duration, logger *zap.Logger) *Runner {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		ch:      make(chan Task, buffer),
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  logger,
	}

	r.wg.Add(1)
	go r.run()

	return r
}

func (r *Runner) run() {
	defer r.wg.Done()

	for {
		select {
		case task := <-r.ch:
			r.exec(task)
		case <-r.done:
			for {
				select {
				case task := <-r.ch:
					r.exec(task)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) exec(task Task) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := task(ctx); err != nil {
		r.logger.Warn("background task failed", zap.Error(err))
	}
}

// Submit enqueues a task, dropping it when the buffer is full or the runner
// is closed.
func (r *Runner) Submit(task Task) {
	if r == nil || task == nil || r.closed.Load() {
		return
	}

	select {
	case r.ch <- task:
	case <-r.done:
	default:
		r.dropped.Add(1)
	}
}

// Close stops intake and drains tasks already queued.
func (r *Runner) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}

// Dropped reports how many tasks were discarded due to a full buffer.
func (r *Runner) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}
