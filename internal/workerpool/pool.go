// Package workerpool runs long-lived tasks on a fixed set of workers fed by
// a FIFO queue.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/metrics"
)

// Task is a named unit of work. Run should return when ctx is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool owns the workers and the task queue. It holds no business state.
type Pool struct {
	queue   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	closing chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New starts workers goroutines. Tasks receive a context derived from
// parent; cancelling parent or forcing Shutdown cancels it.
func New(parent context.Context, workers, queueSize int, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		queue:   make(chan Task, queueSize),
		closing: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		logger:  logger.WithComponent("worker-pool"),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "workers", workers, "queue_size", queueSize)
	return p
}

// Submit enqueues task. It blocks while the queue is full and fails with
// ErrPoolClosed once Shutdown has begun, including when it is already blocked.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return apperrors.Newf(apperrors.ErrPoolClosed, 0, "task %s rejected", task.Name)
	}
	select {
	case p.queue <- task:
		p.logger.Debug("task submitted", "task", task.Name)
		return nil
	case <-p.closing:
		return apperrors.Newf(apperrors.ErrPoolClosed, 0, "task %s rejected: pool shutting down", task.Name)
	case <-p.ctx.Done():
		return apperrors.Newf(apperrors.ErrPoolClosed, 0, "task %s rejected: %v", task.Name, p.ctx.Err())
	}
}

// Shutdown stops accepting tasks and waits for running ones to return. If ctx
// ends first, the task context is cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	// releases any Submit blocked on a full queue so the lock below is free
	p.once.Do(func() { close(p.closing) })

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("worker pool shutdown timed out, tasks cancelled", "error", ctx.Err())
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

// Cancel cancels the context handed to every task without closing the queue.
func (p *Pool) Cancel() {
	p.cancel()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	logger := p.logger.With("worker", id)
	for task := range p.queue {
		if p.ctx.Err() != nil {
			logger.Warn("task discarded, pool cancelled", "task", task.Name)
			continue
		}
		p.execute(logger, task)
	}
}

// execute runs one task to completion. Errors and panics are logged and the
// worker goes back to the queue.
func (p *Pool) execute(logger *slog.Logger, task Task) {
	p.metrics.PoolTasksRunning.Inc()
	defer p.metrics.PoolTasksRunning.Dec()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.PoolTaskFailures.Inc()
			logger.Error("task panicked",
				"task", task.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	logger.Info("task started", "task", task.Name)
	if err := task.Run(p.ctx); err != nil {
		p.metrics.PoolTaskFailures.Inc()
		logger.Error("task failed", "task", task.Name, "error", err)
		return
	}
	logger.Info("task finished", "task", task.Name)
}
