package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash/internal/logging"
	"stash/internal/models"
	"stash/internal/queue"
	"stash/internal/store"
)

type fakeLister struct {
	mu      sync.Mutex
	queries []store.SweepQuery
	cards   []models.Card
	err     error
}

func (f *fakeLister) ListForSweep(_ context.Context, q store.SweepQuery) ([]models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.cards, f.err
}

func (f *fakeLister) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	fail string
}

func (f *fakeQueue) Enqueue(_ context.Context, job queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.CardID == f.fail {
		return errors.New("full")
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestSweepOnceEnqueuesCandidates(t *testing.T) {
	lister := &fakeLister{cards: []models.Card{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	q := &fakeQueue{fail: "b"}
	s := &Sweeper{Cards: lister, Queue: q, StaleAfter: 5 * time.Minute, RetryFailed: true, Batch: 10, Log: logging.Discard()}

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []queue.Job{{CardID: "a", Reason: "sweep"}, {CardID: "c", Reason: "sweep"}}, q.jobs)

	require.Len(t, lister.queries, 1)
	assert.True(t, lister.queries[0].IncludeFailed)
	assert.Equal(t, 10, lister.queries[0].Limit)
	assert.WithinDuration(t, time.Now().Add(-5*time.Minute), lister.queries[0].StaleBefore, time.Second)
}

func TestSweepOnceSurfacesStoreError(t *testing.T) {
	s := &Sweeper{Cards: &fakeLister{err: errors.New("db down")}, Queue: &fakeQueue{}}
	_, err := s.SweepOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestStartRunsOnInterval(t *testing.T) {
	lister := &fakeLister{}
	s := &Sweeper{Cards: lister, Queue: &fakeQueue{}, Interval: 50 * time.Millisecond, Log: logging.Discard()}
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return lister.calls() >= 2 }, 2*time.Second, 20*time.Millisecond)
}

func TestStartDisabled(t *testing.T) {
	s := &Sweeper{}
	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop())
}
