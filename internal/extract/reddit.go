package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const redditUserAgent = "stash-enricher/1.0 (+https://github.com)"

type Reddit struct {
	fetch *Fetcher
}

func NewReddit(fetch *Fetcher) *Reddit {
	return &Reddit{fetch: fetch}
}

type redditPost struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Selftext      string `json:"selftext"`
	URL           string `json:"url_overridden_by_dest"`
	PostHint      string `json:"post_hint"`
	IsGallery     bool   `json:"is_gallery"`
	IsVideo       bool   `json:"is_video"`
	MediaMetadata map[string]struct {
		Kind   string `json:"e"`
		Source struct {
			U string `json:"u"`
		} `json:"s"`
	} `json:"media_metadata"`
	GalleryData struct {
		Items []struct {
			MediaID string `json:"media_id"`
		} `json:"items"`
	} `json:"gallery_data"`
	Preview struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// JSON appends .json to the post URL and reads the first listing's post.
func (r *Reddit) JSON(ctx context.Context, t Target) (*Result, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, err
	}
	u.RawQuery = ""
	u.Path = strings.TrimSuffix(u.Path, "/") + ".json"
	resp, err := r.fetch.Get(ctx, u.String(), redditUserAgent, nil)
	if err != nil {
		return nil, err
	}
	var listings []redditListing
	if err := json.Unmarshal(resp.Body, &listings); err != nil {
		return nil, fmt.Errorf("decode reddit listing: %w", err)
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return nil, errors.New("reddit: empty listing")
	}
	return listings[0].Data.Children[0].Data.result(), nil
}

func (p redditPost) result() *Result {
	res := &Result{Title: p.Title, Caption: p.Selftext, AuthorHandle: p.Author}
	if p.IsGallery {
		for _, item := range p.GalleryData.Items {
			m, ok := p.MediaMetadata[item.MediaID]
			if !ok || m.Source.U == "" {
				continue
			}
			res.Images = append(res.Images, m.Source.U)
			if m.Kind == "AnimatedImage" {
				res.MediaTypes = append(res.MediaTypes, "video")
			} else {
				res.MediaTypes = append(res.MediaTypes, "image")
			}
		}
		if len(res.Images) > 0 {
			return res
		}
	}
	if p.PostHint == "image" && p.URL != "" {
		res.Images = []string{p.URL}
		return res
	}
	for _, img := range p.Preview.Images {
		res.Images = append(res.Images, img.Source.URL)
	}
	if p.IsVideo && len(res.Images) > 0 {
		res.MediaTypes = []string{"video"}
	}
	return res
}
