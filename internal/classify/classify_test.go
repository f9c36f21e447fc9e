package classify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash/internal/ai"
	"stash/internal/logging"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	var calls int
	err := Retry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	var calls int
	err := Retry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetryBacksOffExponentially(t *testing.T) {
	var stamps []time.Time
	_ = Retry(context.Background(), 2, 20*time.Millisecond, func(context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("down")
	})
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	var calls int
	err := Retry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return Permanent(ai.ErrNotConfigured)
	})
	assert.ErrorIs(t, err, ai.ErrNotConfigured)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := Retry(ctx, 10, time.Second, func(context.Context) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeClassifier struct {
	calls  atomic.Int32
	fail   int32
	result Result
	gate   chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, _ Input) (Result, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if n <= f.fail {
		return Result{}, errors.New("503")
	}
	return f.result, nil
}

type fakeImages struct {
	err    error
	signal chan struct{}
}

func (f *fakeImages) AnalyzeImage(context.Context, string) (ai.ImageAnalysis, error) {
	if f.signal != nil {
		close(f.signal)
	}
	if f.err != nil {
		return ai.ImageAnalysis{}, f.err
	}
	return ai.ImageAnalysis{Colors: []string{"red"}, OCRText: "hello"}, nil
}

type fakeAligner struct{ calls atomic.Int32 }

func (f *fakeAligner) AlignTags(_ context.Context, tags, _ []string) ([]string, error) {
	f.calls.Add(1)
	return append([]string{"aligned"}, tags...), nil
}

type fakeVocab struct{}

func (fakeVocab) UserTags(context.Context, string) ([]string, error) {
	return []string{"cooking"}, nil
}

func newOrchestrator(c Classifier, img ImageAnalyzer) *Orchestrator {
	return &Orchestrator{
		Classifier:      c,
		Images:          img,
		Aligner:         &fakeAligner{},
		Vocabulary:      fakeVocab{},
		Retries:         2,
		Backoff:         time.Millisecond,
		NormalizeBudget: 50 * time.Millisecond,
		Log:             logging.Discard(),
	}
}

func TestOrchestratorRunsImageAnalysisConcurrently(t *testing.T) {
	signal := make(chan struct{})
	cls := &fakeClassifier{result: Result{Title: "t", Tags: []string{"pasta"}}, gate: signal}
	o := newOrchestrator(cls, &fakeImages{signal: signal})

	res, err := o.Run(context.Background(), Input{UserID: "u1", ImageURL: "https://cdn/x.jpg"})
	require.NoError(t, err)
	require.NotNil(t, res.Image)
	assert.Equal(t, "hello", res.Image.OCRText)
	assert.Equal(t, []string{"aligned", "pasta"}, res.Tags)
}

func TestOrchestratorImageFailureIsNotFatal(t *testing.T) {
	cls := &fakeClassifier{fail: 2, result: Result{Title: "t", Tags: []string{"pasta"}}}
	o := newOrchestrator(cls, &fakeImages{err: errors.New("vision down")})

	res, err := o.Run(context.Background(), Input{ImageURL: "https://cdn/x.jpg"})
	require.NoError(t, err)
	assert.Nil(t, res.Image)
	assert.Equal(t, int32(3), cls.calls.Load())
	assert.Equal(t, "t", res.Title)
}

func TestOrchestratorSurfacesClassificationFailure(t *testing.T) {
	cls := &fakeClassifier{fail: 10}
	o := newOrchestrator(cls, nil)

	_, err := o.Run(context.Background(), Input{})
	assert.ErrorContains(t, err, "503")
	assert.Equal(t, int32(3), cls.calls.Load())
}

func TestOrchestratorSkipsNormalizationNearDeadline(t *testing.T) {
	cls := &fakeClassifier{result: Result{Tags: []string{"pasta"}}}
	o := newOrchestrator(cls, nil)
	o.NormalizeBudget = time.Hour
	aligner := o.Aligner.(*fakeAligner)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := o.Run(ctx, Input{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pasta"}, res.Tags)
	assert.Equal(t, int32(0), aligner.calls.Load())
}

func TestOrchestratorDefaultsLogger(t *testing.T) {
	o := &Orchestrator{}
	assert.Equal(t, logrus.StandardLogger(), o.logger())
}
