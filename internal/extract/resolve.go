package extract

import (
	"context"
	"net/http"
	"time"

	cache "github.com/patrickmn/go-cache"

	"stash/internal/platform"
)

const resolveTimeout = 5 * time.Second

// Resolver expands share links into canonical URLs by following redirects of a HEAD
// request. Any failure leaves the URL unchanged.
type Resolver struct {
	client  *http.Client
	cache   *cache.Cache
	timeout time.Duration
	isShare func(string) bool
}

func NewResolver() *Resolver {
	return &Resolver{
		client:  &http.Client{},
		cache:   cache.New(6*time.Hour, 30*time.Minute),
		timeout: resolveTimeout,
		isShare: platform.IsShareLink,
	}
}

func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	if !r.isShare(rawURL) {
		return rawURL
	}
	if cached, ok := r.cache.Get(rawURL); ok {
		return cached.(string)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return rawURL
	}
	resp.Body.Close()
	if resp.Request == nil || resp.Request.URL == nil {
		return rawURL
	}
	final := resp.Request.URL.String()
	if final == "" || final == rawURL {
		return rawURL
	}
	r.cache.Set(rawURL, final, cache.DefaultExpiration)
	return final
}
