package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deskforge/deskforge/pkg/observability"
)

// SafeGo executes a function in a detached goroutine with panic recovery
// and a per-task timeout. Errors are logged, never returned: the caller
// has already moved on.
//
// Note the context: the task gets a fresh background context, not the
// caller's. A mutation's request context is cancelled the moment its
// response is written, which must not abort in-flight notifications.
func SafeGo(logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// WorkerPool manages a bounded pool of workers processing detached tasks.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	logger       *observability.Logger
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool creates a worker pool with the given concurrency and a
// buffered queue of workers*2 pending tasks.
func NewWorkerPool(workers int, taskName string, timeout time.Duration, logger *observability.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task without blocking. Returns an error if the pool
// is shut down or the queue is full; callers in the dispatch path log
// and drop on failure rather than blocking the mutation that produced
// the event.
func (p *WorkerPool) Submit(fn func(context.Context) error) (err error) {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	defer func() {
		// Submit raced with Shutdown closing the channel.
		if r := recover(); r != nil {
			err = fmt.Errorf("worker pool shut down")
		}
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
		return fmt.Errorf("worker pool queue full")
	}
}

// Shutdown stops accepting tasks and waits up to timeout for workers to
// drain the queue. Tasks still running past the deadline are abandoned.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		func() {
			defer func() { recover() }() //nolint:errcheck
			close(p.workCh)
		}()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

func (p *WorkerPool) worker(id int) {
	defer observability.RecoverPanic(p.logger.WithField("worker", id), p.taskName)

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(p.ctx, p.timeout)

			func() {
				defer cancel()
				defer observability.RecoverPanic(p.logger.WithField("worker", id), p.taskName)

				if err := fn(ctx); err != nil {
					p.logger.WithError(err).
						WithField("task", p.taskName).
						WithField("worker", id).
						Warn("worker task failed")
				}
			}()
		}
	}
}
