package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TaskQueue runs best-effort side effects off the request path. Failures are
// logged and never reach the caller.
type TaskQueue struct {
	logger  *zap.Logger
	timeout time.Duration
	tasks   chan task
	group   errgroup.Group

	mu     sync.RWMutex
	closed bool
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// NewTaskQueue starts workers that drain a queue of at most size pending tasks.
func NewTaskQueue(workers, size int, timeout time.Duration, logger *zap.Logger) *TaskQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &TaskQueue{
		logger:  logger,
		timeout: timeout,
		tasks:   make(chan task, size),
	}
	for i := 0; i < workers; i++ {
		q.group.Go(q.work)
	}
	return q
}

// Go enqueues fn without blocking. It reports false when the queue is full or closed.
func (q *TaskQueue) Go(name string, fn func(ctx context.Context) error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("task dropped, queue closed", zap.String("task", name))
		return false
	}
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		q.logger.Warn("task dropped, queue full", zap.String("task", name))
		return false
	}
}

// Close stops accepting tasks and waits for queued ones until ctx is done.
func (q *TaskQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- q.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *TaskQueue) work() error {
	for t := range q.tasks {
		q.run(t)
	}
	return nil
}

func (q *TaskQueue) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", zap.String("task", t.name), zap.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := t.fn(ctx); err != nil {
		q.logger.Warn("task failed", zap.String("task", t.name), zap.Error(err))
	}
}
