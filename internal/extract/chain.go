// Package extract turns a URL into normalized media and caption data. Each platform
// has an ordered chain of independent strategies; the first strategy that yields at
// least one image wins.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stash/internal/platform"
)

var (
	// ErrExhausted means every strategy of a chain failed or came back without media.
	ErrExhausted = errors.New("no images extracted")
	ErrEmpty     = errors.New("strategy returned no media")
)

// Target is what a strategy works on: the resolved URL plus the ids parsed from it.
type Target struct {
	URL         string
	OriginalURL string
	Platform    platform.Platform
	Shortcode   string
}

// Result is the normalized output shared by all strategies.
type Result struct {
	Images       []string `json:"images"`
	MediaTypes   []string `json:"mediaTypes,omitempty"`
	Title        string   `json:"title,omitempty"`
	Caption      string   `json:"caption,omitempty"`
	Text         string   `json:"text,omitempty"`
	AuthorName   string   `json:"authorName,omitempty"`
	AuthorHandle string   `json:"authorHandle,omitempty"`
	IsCarousel   bool     `json:"isCarousel"`
	SlideCount   int      `json:"slideCount"`
	Source       string   `json:"source"`
}

func (r *Result) Empty() bool {
	return r == nil || len(r.Images) == 0
}

func (r *Result) hasText() bool {
	return r != nil && (strings.TrimSpace(r.Caption) != "" || strings.TrimSpace(r.Title) != "" || strings.TrimSpace(r.Text) != "")
}

// normalize cleans image URLs and fills the derived carousel fields.
func (r *Result) normalize(source string) {
	if r.Source == "" {
		r.Source = source
	}
	images, types := cleanMedia(r.Images, r.MediaTypes)
	r.Images = images
	r.MediaTypes = types
	r.SlideCount = len(r.Images)
	r.IsCarousel = r.SlideCount > 1
	r.Caption = strings.TrimSpace(decodeEntities(r.Caption))
	r.Title = strings.TrimSpace(decodeEntities(r.Title))
	r.AuthorName = strings.TrimSpace(decodeEntities(r.AuthorName))
	r.AuthorHandle = strings.TrimPrefix(strings.TrimSpace(r.AuthorHandle), "@")
}

type Strategy interface {
	Name() string
	Extract(ctx context.Context, t Target) (*Result, error)
}

type funcStrategy struct {
	name string
	fn   func(ctx context.Context, t Target) (*Result, error)
}

func (s funcStrategy) Name() string { return s.name }

func (s funcStrategy) Extract(ctx context.Context, t Target) (*Result, error) {
	return s.fn(ctx, t)
}

// StrategyFunc adapts a plain function into a Strategy.
func StrategyFunc(name string, fn func(ctx context.Context, t Target) (*Result, error)) Strategy {
	return funcStrategy{name: name, fn: fn}
}

// Attempt records how one strategy of a chain run went.
type Attempt struct {
	Strategy string
	Images   int
	Err      error
	Elapsed  time.Duration
}

func (a Attempt) OK() bool {
	return a.Err == nil && a.Images > 0
}

type Chain struct {
	Strategies []Strategy
	Timeout    time.Duration
}

func NewChain(timeout time.Duration, strategies ...Strategy) *Chain {
	return &Chain{Strategies: strategies, Timeout: timeout}
}

// Run tries strategies in order and returns the first result with media. Later
// strategies are never invoked once one succeeds, and results are never merged. When
// the chain is exhausted the first text-only result seen, if any, is returned
// together with ErrExhausted so callers can still use the caption.
func (c *Chain) Run(ctx context.Context, t Target) (*Result, []Attempt, error) {
	attempts := make([]Attempt, 0, len(c.Strategies))
	var textOnly *Result
	var lastErr error
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return textOnly, attempts, err
		}
		res, elapsed, err := c.runOne(ctx, s, t)
		a := Attempt{Strategy: s.Name(), Err: err, Elapsed: elapsed}
		if err == nil && res != nil {
			res.normalize(s.Name())
			a.Images = len(res.Images)
			if res.Empty() {
				a.Err = ErrEmpty
			}
		}
		attempts = append(attempts, a)
		if a.OK() {
			return res, attempts, nil
		}
		if res.hasText() && textOnly == nil {
			textOnly = res
		}
		lastErr = a.Err
	}
	if lastErr != nil {
		return textOnly, attempts, fmt.Errorf("%w: last strategy: %v", ErrExhausted, lastErr)
	}
	return textOnly, attempts, ErrExhausted
}

func (c *Chain) runOne(ctx context.Context, s Strategy, t Target) (res *Result, elapsed time.Duration, err error) {
	start := time.Now()
	sctx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
		elapsed = time.Since(start)
	}()
	res, err = s.Extract(sctx, t)
	return res, elapsed, err
}
