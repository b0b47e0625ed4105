package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/metrics"
)

// Task is detached background work. The context it receives is owned by the
// pool, never by the request that submitted it.
type Task func(ctx context.Context)

type WorkerPool struct {
	workers     int
	jobQueue    chan Task
	taskTimeout time.Duration
	log         *zap.Logger
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	startOnce   sync.Once
}

func NewWorkerPool(workers, queueSize int, taskTimeout time.Duration, log *zap.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if taskTimeout <= 0 {
		taskTimeout = 10 * time.Second
	}
	return &WorkerPool{
		workers:     workers,
		jobQueue:    make(chan Task, queueSize),
		taskTimeout: taskTimeout,
		log:         log,
	}
}

func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Submit enqueues task without blocking. It reports false when the queue is
// full or the pool is stopping; the task is dropped in that case.
func (p *WorkerPool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.log.Warn("worker pool stopped, dropping task")
		metrics.EnrichmentDropped.Inc()
		return false
	}

	select {
	case p.jobQueue <- task:
		metrics.EnrichmentQueueDepth.Set(float64(len(p.jobQueue)))
		return true
	default:
		p.log.Warn("queue full, dropping task", zap.Int("capacity", cap(p.jobQueue)))
		metrics.EnrichmentDropped.Inc()
		return false
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for task := range p.jobQueue {
		metrics.EnrichmentQueueDepth.Set(float64(len(p.jobQueue)))
		p.run(id, task)
	}
}

func (p *WorkerPool) run(id int, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.EnrichmentDegraded.WithLabelValues("panic").Inc()
			p.log.Error("task panicked",
				zap.Int("worker", id),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()

	task(ctx)
}

// Stop refuses new tasks and waits for queued ones to finish, or for ctx to
// end, whichever comes first.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
	p.mu.Unlock()

	// workers that were never started still have to drain the queue
	p.Start()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}
