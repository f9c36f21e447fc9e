package extract

import (
	"context"
	"errors"
	"time"

	cache "github.com/patrickmn/go-cache"

	"stash/internal/platform"
)

const previewTimeout = 2500 * time.Millisecond

type Options struct {
	StrategyTimeout      time.Duration
	InstagramMirrorURL   string
	InstagramQueryHashes []string
}

// Registry owns the per-platform chains and caches whole-chain results by URL.
type Registry struct {
	Resolver  *Resolver
	Instagram *Instagram
	chains    map[platform.Platform]*Chain
	generic   *Chain
	results   *cache.Cache
}

func NewRegistry(fetch *Fetcher, opts Options) *Registry {
	ig := NewInstagram(fetch, opts.InstagramMirrorURL, opts.InstagramQueryHashes)
	generic := NewGeneric(fetch)
	genericStrategy := StrategyFunc("generic", generic.Extract)
	tw := NewTwitter(fetch)
	rd := NewReddit(fetch)
	oe := NewOEmbed(fetch)
	oembedStrategy := StrategyFunc("oembed", oe.Extract)

	timeout := opts.StrategyTimeout
	r := &Registry{
		Resolver:  NewResolver(),
		Instagram: ig,
		generic:   NewChain(timeout, genericStrategy),
		results:   cache.New(10*time.Minute, 20*time.Minute),
	}
	r.chains = map[platform.Platform]*Chain{
		platform.Instagram: NewChain(timeout, ig.Strategies()...),
		platform.Twitter:   NewChain(timeout, StrategyFunc("twitter:syndication", tw.Syndication), genericStrategy),
		platform.Reddit:    NewChain(timeout, StrategyFunc("reddit:json", rd.JSON), genericStrategy),
		platform.YouTube:   NewChain(timeout, oembedStrategy, StrategyFunc("youtube:thumbnail", YouTubeThumbnail), genericStrategy),
		platform.TikTok:    NewChain(timeout, oembedStrategy, genericStrategy),
		platform.Vimeo:     NewChain(timeout, oembedStrategy, genericStrategy),
	}
	return r
}

func (r *Registry) ChainFor(p platform.Platform) *Chain {
	if c, ok := r.chains[p]; ok {
		return c
	}
	return r.generic
}

// Target resolves share links and parses the platform ids out of the final URL.
func (r *Registry) Target(ctx context.Context, rawURL string) Target {
	resolved := r.Resolver.Resolve(ctx, rawURL)
	p := platform.FromURL(resolved)
	t := Target{URL: resolved, OriginalURL: rawURL, Platform: p}
	if p == platform.Instagram {
		t.Shortcode = platform.InstagramShortcode(resolved)
	}
	return t
}

// Extract runs the chain for rawURL's platform. Successful results are cached; on
// exhaustion the text-only result (possibly nil) is returned with ErrExhausted.
// refresh skips the cached result and replaces it.
func (r *Registry) Extract(ctx context.Context, rawURL string, refresh bool) (*Result, Target, []Attempt, error) {
	if cached, ok := r.results.Get(rawURL); ok && !refresh {
		hit := cached.(cachedExtraction)
		res := *hit.result
		return &res, hit.target, nil, nil
	}
	t := r.Target(ctx, rawURL)
	res, attempts, err := r.ChainFor(t.Platform).Run(ctx, t)
	if err == nil {
		r.results.Set(rawURL, cachedExtraction{result: res, target: t}, cache.DefaultExpiration)
	}
	return res, t, attempts, err
}

type cachedExtraction struct {
	result *Result
	target Target
}

// Preview is the save-time fast path for Instagram: one oEmbed call under a short
// budget. Any failure returns nil and leaves the work to enrichment.
func (r *Registry) Preview(ctx context.Context, rawURL string) *Result {
	ctx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()
	t := r.Target(ctx, rawURL)
	if t.Platform != platform.Instagram || t.Shortcode == "" {
		return nil
	}
	res, _, err := NewChain(0, StrategyFunc("instagram:oembed", r.Instagram.OEmbed)).Run(ctx, t)
	if err != nil && !errors.Is(err, ErrExhausted) {
		return nil
	}
	return res
}
