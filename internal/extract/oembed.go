package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"stash/internal/platform"
)

var oembedEndpoints = map[platform.Platform]string{
	platform.YouTube: "https://www.youtube.com/oembed",
	platform.TikTok:  "https://www.tiktok.com/oembed",
	platform.Vimeo:   "https://vimeo.com/api/oembed.json",
}

// OEmbed serves the video platforms that publish a keyless oEmbed endpoint.
type OEmbed struct {
	fetch     *Fetcher
	Endpoints map[platform.Platform]string
}

func NewOEmbed(fetch *Fetcher) *OEmbed {
	endpoints := make(map[platform.Platform]string, len(oembedEndpoints))
	for k, v := range oembedEndpoints {
		endpoints[k] = v
	}
	return &OEmbed{fetch: fetch, Endpoints: endpoints}
}

func (o *OEmbed) Extract(ctx context.Context, t Target) (*Result, error) {
	endpoint, ok := o.Endpoints[t.Platform]
	if !ok {
		return nil, fmt.Errorf("no oembed endpoint for %s", t.Platform)
	}
	q := url.Values{}
	q.Set("url", t.URL)
	q.Set("format", "json")
	resp, err := o.fetch.Get(ctx, endpoint+"?"+q.Encode(), BrowserUserAgent, nil)
	if err != nil {
		return nil, err
	}
	var out oembedResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode oembed: %w", err)
	}
	res := &Result{Title: out.Title, AuthorName: out.AuthorName}
	if out.ThumbnailURL != "" {
		res.Images = []string{out.ThumbnailURL}
		res.MediaTypes = []string{"video"}
	}
	return res, nil
}

// YouTubeThumbnail derives the poster frame from the video id without a request.
func YouTubeThumbnail(_ context.Context, t Target) (*Result, error) {
	id := platform.YouTubeID(t.URL)
	if id == "" {
		return nil, fmt.Errorf("no youtube id in %q", t.URL)
	}
	return &Result{
		Images:     []string{"https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"},
		MediaTypes: []string{"video"},
	}, nil
}
