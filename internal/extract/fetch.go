package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	MobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	CrawlerUserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	PreviewUserAgent = "TelegramBot (like TwitterBot)"

	defaultMaxBody = 8 << 20
	hostRate       = 4.0
)

// Fetcher issues GET requests with a per-host token bucket so a burst of saves for
// one platform does not hammer it.
type Fetcher struct {
	Client  *http.Client
	MaxBody int64
	limits  sync.Map
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		Client:  &http.Client{Timeout: timeout},
		MaxBody: defaultMaxBody,
	}
}

type Response struct {
	Status   int
	Body     []byte
	FinalURL string
	Header   http.Header
}

func (f *Fetcher) Get(ctx context.Context, rawURL, userAgent string, headers map[string]string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = BrowserUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	maxBody := f.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	out := &Response{Status: resp.StatusCode, Body: body, FinalURL: resp.Request.URL.String(), Header: resp.Header}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	return out, nil
}

// looksLikeLoginWall catches pages served in place of content to anonymous clients.
func looksLikeLoginWall(resp *Response) bool {
	if resp == nil {
		return false
	}
	final := strings.ToLower(resp.FinalURL)
	return strings.Contains(final, "/accounts/login") || strings.Contains(final, "/login/?next")
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	if l, ok := f.limits.Load(host); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := f.limits.LoadOrStore(host, rate.NewLimiter(rate.Limit(hostRate), int(hostRate*2)))
	return actual.(*rate.Limiter)
}
