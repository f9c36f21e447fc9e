// Package queue hands enrichment jobs from the save path to background workers. Jobs
// run on the worker's own context, never on the request that enqueued them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"stash/internal/metrics"
)

var ErrFull = errors.New("queue full")

type Job struct {
	CardID string `json:"cardId"`
	Force  bool   `json:"force,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Run consumes jobs until ctx is cancelled and in-flight jobs have returned.
	Run(ctx context.Context, h Handler) error
}

// Memory is an in-process queue: a buffered channel drained by a fixed worker pool.
// A card already waiting in the buffer is not queued twice.
type Memory struct {
	jobs    chan Job
	workers int
	log     logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]bool
}

func NewMemory(size, workers int, log logrus.FieldLogger) *Memory {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &Memory{jobs: make(chan Job, size), workers: workers, log: log, pending: map[string]bool{}}
}

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	if job.CardID == "" {
		return errors.New("job without card id")
	}
	m.mu.Lock()
	if m.pending[job.CardID] {
		m.mu.Unlock()
		return nil
	}
	m.pending[job.CardID] = true
	m.mu.Unlock()

	select {
	case m.jobs <- job:
		metrics.QueueJobs.WithLabelValues("memory", "enqueued").Inc()
		return nil
	case <-ctx.Done():
		m.forget(job.CardID)
		return ctx.Err()
	default:
		m.forget(job.CardID)
		return ErrFull
	}
}

func (m *Memory) forget(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Memory) Run(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-m.jobs:
					m.forget(job.CardID)
					runJob(ctx, "memory", h, job, m.log)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// runJob shields the worker from a panicking handler.
func runJob(ctx context.Context, driver string, h Handler, job Job, log logrus.FieldLogger) {
	defer func() {
		if r := recover(); r != nil {
			metrics.QueueJobs.WithLabelValues(driver, "panicked").Inc()
			if log != nil {
				log.WithField("card_id", job.CardID).Errorf("job panicked: %v", r)
			}
		}
	}()
	if err := h(ctx, job); err != nil {
		metrics.QueueJobs.WithLabelValues(driver, "failed").Inc()
		if log != nil {
			log.WithError(err).WithField("card_id", job.CardID).Warn("job failed")
		}
		return
	}
	metrics.QueueJobs.WithLabelValues(driver, "done").Inc()
}

// New picks the driver named by cfg.
func New(driver, redisURL string, workers int, log logrus.FieldLogger) (Queue, error) {
	switch driver {
	case "", "memory":
		return NewMemory(1024, workers, log), nil
	case "redis":
		return NewRedis(redisURL, "stash:enrich", workers, log)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", driver)
	}
}
