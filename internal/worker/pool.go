package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rentledger/internal/metrics"
)

var (
	ErrPoolStopped = errors.New("worker pool stopped")
	ErrQueueFull   = errors.New("worker queue full")
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Pool runs submitted jobs on a fixed number of goroutines.
type Pool struct {
	name     string
	workers  int
	timeout  time.Duration
	jobs     chan job
	log      logrus.FieldLogger
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	startOne sync.Once
}

func NewPool(name string, workerCount, queueSize int, log logrus.FieldLogger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = workerCount * 16
	}
	return &Pool{
		name:    name,
		workers: workerCount,
		timeout: 30 * time.Second,
		jobs:    make(chan job, queueSize),
		log:     log.WithField("pool", name),
	}
}

func (wp *Pool) Start() {
	wp.startOne.Do(func() {
		wp.log.WithField("workers", wp.workers).Info("starting worker pool")
		for i := 0; i < wp.workers; i++ {
			wp.wg.Add(1)
			go wp.loop()
		}
	})
}

func (wp *Pool) loop() {
	defer wp.wg.Done()
	metrics.WorkerActive.WithLabelValues(wp.name).Add(1)
	defer metrics.WorkerActive.WithLabelValues(wp.name).Sub(1)

	for j := range wp.jobs {
		wp.handle(j)
	}
}

func (wp *Pool) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), wp.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			wp.log.WithField("job", j.name).Errorf("job panicked: %v", r)
			metrics.WorkerProcessed.WithLabelValues(wp.name, "error").Inc()
		}
	}()

	if err := j.run(ctx); err != nil {
		wp.log.WithError(err).WithField("job", j.name).Warn("job failed")
		metrics.WorkerProcessed.WithLabelValues(wp.name, "error").Inc()
		return
	}
	metrics.WorkerProcessed.WithLabelValues(wp.name, "ok").Inc()
}

// Submit queues a job without blocking. It fails when the pool is stopped or
// the queue is full.
func (wp *Pool) Submit(name string, run func(ctx context.Context) error) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}
	select {
	case wp.jobs <- job{name: name, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new jobs, lets the workers drain the queue and waits for them.
func (wp *Pool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.log.Info("worker pool stopped")
}
