package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash/internal/logging"
)

func TestMemoryRunsJobsOnWorkerContext(t *testing.T) {
	q := NewMemory(8, 2, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	seen := map[string]bool{}
	done := make(chan struct{}, 3)
	go q.Run(ctx, func(jctx context.Context, job Job) error {
		mu.Lock()
		seen[job.CardID] = true
		mu.Unlock()
		done <- struct{}{}
		if job.CardID == "boom" {
			panic("handler bug")
		}
		return nil
	})

	reqCtx, reqCancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(reqCtx, Job{CardID: "a"}))
	reqCancel()
	require.NoError(t, q.Enqueue(context.Background(), Job{CardID: "boom"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{CardID: "b"}))

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs did not run")
		}
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]bool{"a": true, "boom": true, "b": true}, seen)
}

func TestMemoryDeduplicatesPendingCards(t *testing.T) {
	q := NewMemory(4, 1, nil)
	require.NoError(t, q.Enqueue(context.Background(), Job{CardID: "a"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{CardID: "a"}))
	assert.Len(t, q.jobs, 1)
}

func TestMemoryFull(t *testing.T) {
	q := NewMemory(1, 1, nil)
	require.NoError(t, q.Enqueue(context.Background(), Job{CardID: "a"}))
	err := q.Enqueue(context.Background(), Job{CardID: "b"})
	assert.True(t, errors.Is(err, ErrFull))
	assert.Error(t, q.Enqueue(context.Background(), Job{}))
}

func TestRunReturnsAfterCancel(t *testing.T) {
	q := NewMemory(1, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		q.Run(ctx, func(context.Context, Job) error { return errors.New("unused") })
		close(finished)
	}()
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("kafka", "", 1, nil)
	assert.Error(t, err)
	_, err = NewRedis("not a url", "k", 1, nil)
	assert.Error(t, err)
}
