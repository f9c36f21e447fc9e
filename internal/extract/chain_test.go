package extract

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func images(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://cdn.example.com/media/%d.jpg", i)
	}
	return out
}

type countingStrategy struct {
	name  string
	calls atomic.Int32
	res   *Result
	err   error
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Extract(context.Context, Target) (*Result, error) {
	s.calls.Add(1)
	if s.res == nil {
		return nil, s.err
	}
	cp := *s.res
	return &cp, s.err
}

func TestChainFirstNonEmptyWins(t *testing.T) {
	first := &countingStrategy{name: "a", err: errors.New("blocked")}
	second := &countingStrategy{name: "b", res: &Result{}}
	third := &countingStrategy{name: "c", res: &Result{Images: images(2)}}
	fourth := &countingStrategy{name: "d", res: &Result{Images: images(5)}}

	res, attempts, err := NewChain(time.Second, first, second, third, fourth).Run(context.Background(), Target{})
	require.NoError(t, err)
	assert.Len(t, res.Images, 2)
	assert.Equal(t, "c", res.Source)
	assert.True(t, res.IsCarousel)
	assert.Equal(t, 2, res.SlideCount)
	assert.Equal(t, int32(0), fourth.calls.Load())
	require.Len(t, attempts, 3)
	assert.ErrorIs(t, attempts[1].Err, ErrEmpty)
}

func TestChainExhaustedKeepsText(t *testing.T) {
	textOnly := &countingStrategy{name: "a", res: &Result{Caption: "just words"}}
	failing := &countingStrategy{name: "b", err: errors.New("nope")}

	res, attempts, err := NewChain(time.Second, textOnly, failing).Run(context.Background(), Target{})
	assert.ErrorIs(t, err, ErrExhausted)
	require.NotNil(t, res)
	assert.Equal(t, "just words", res.Caption)
	assert.Empty(t, res.Images)
	assert.Len(t, attempts, 2)
}

func TestChainRecoversPanics(t *testing.T) {
	boom := StrategyFunc("boom", func(context.Context, Target) (*Result, error) {
		panic("bad parse")
	})
	ok := &countingStrategy{name: "ok", res: &Result{Images: images(1)}}

	res, attempts, err := NewChain(time.Second, boom, ok).Run(context.Background(), Target{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Source)
	assert.ErrorContains(t, attempts[0].Err, "panicked")
}

func TestChainStrategyTimeout(t *testing.T) {
	slow := StrategyFunc("slow", func(ctx context.Context, _ Target) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ok := &countingStrategy{name: "ok", res: &Result{Images: images(1)}}

	res, attempts, err := NewChain(20*time.Millisecond, slow, ok).Run(context.Background(), Target{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Source)
	assert.ErrorIs(t, attempts[0].Err, context.DeadlineExceeded)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &countingStrategy{name: "a", res: &Result{Images: images(1)}}

	_, _, err := NewChain(time.Second, s).Run(ctx, Target{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestCleanImageURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://scontent.cdninstagram.com/v/t51.29350-15/1.jpg?a=1&amp;b=2", "https://scontent.cdninstagram.com/v/t51.29350-15/1.jpg?a=1&b=2", true},
		{"//cdn.example.com/x.png", "https://cdn.example.com/x.png", true},
		{"https://scontent.cdninstagram.com/v/t51.2885-19/avatar.jpg", "", false},
		{"https://pbs.twimg.com/profile_images/1/me.jpg", "", false},
		{"https://cdn.example.com/s150x150/thumb.jpg", "", false},
		{"javascript:alert(1)", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := CleanImageURL(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCleanMediaDedupesInOrder(t *testing.T) {
	imgs, types := cleanMedia(
		[]string{"https://a.com/1.jpg", "https://a.com/2.jpg", "https://a.com/1.jpg", "https://a.com/s150x150/3.jpg"},
		[]string{"image", "video"},
	)
	assert.Equal(t, []string{"https://a.com/1.jpg", "https://a.com/2.jpg"}, imgs)
	assert.Equal(t, []string{"image", "video"}, types)
}

func TestRegistryRefreshSkipsCachedResult(t *testing.T) {
	ctx := context.Background()
	s := &countingStrategy{name: "generic", res: &Result{Images: images(1)}}
	r := &Registry{
		Resolver: NewResolver(),
		generic:  NewChain(time.Second, s),
		results:  cache.New(time.Minute, time.Minute),
	}
	const url = "https://example.com/post"

	_, _, attempts, err := r.Extract(ctx, url, false)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	res, _, attempts, err := r.Extract(ctx, url, false)
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.Len(t, res.Images, 1)
	assert.Equal(t, int32(1), s.calls.Load())

	_, _, attempts, err = r.Extract(ctx, url, true)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
	assert.Equal(t, int32(2), s.calls.Load())
}
