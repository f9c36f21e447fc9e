package extract

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
)

const maxArticleText = 2000

// Generic scrapes Open Graph tags and, for article-like pages, the main text.
type Generic struct {
	fetch *Fetcher
}

func NewGeneric(fetch *Fetcher) *Generic {
	return &Generic{fetch: fetch}
}

func (g *Generic) Extract(ctx context.Context, t Target) (*Result, error) {
	resp, err := g.fetch.Get(ctx, t.URL, BrowserUserAgent, nil)
	if err != nil {
		return nil, err
	}
	og := ParseOpenGraph(resp.Body)
	res := og.result()
	if og.Video != "" && len(res.Images) > 0 {
		res.MediaTypes = []string{"video"}
	}

	base, _ := url.Parse(resp.FinalURL)
	res.Images = absolutize(base, res.Images)

	opts := trafilatura.Options{OriginalURL: base}
	article, err := trafilatura.Extract(bytes.NewReader(resp.Body), opts)
	if err != nil || article == nil {
		return res, nil
	}
	res.Text = truncateRunes(strings.TrimSpace(article.ContentText), maxArticleText)
	if res.Title == "" {
		res.Title = article.Metadata.Title
	}
	if res.Caption == "" {
		res.Caption = article.Metadata.Description
	}
	if res.AuthorName == "" {
		res.AuthorName = article.Metadata.Author
	}
	if len(res.Images) == 0 && article.Metadata.Image != "" {
		res.Images = absolutize(base, []string{article.Metadata.Image})
	}
	return res, nil
}

func absolutize(base *url.URL, images []string) []string {
	if base == nil {
		return images
	}
	out := make([]string, 0, len(images))
	for _, img := range images {
		ref, err := url.Parse(strings.TrimSpace(img))
		if err != nil {
			continue
		}
		if strings.HasPrefix(img, "//") {
			out = append(out, img)
			continue
		}
		out = append(out, base.ResolveReference(ref).String())
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
