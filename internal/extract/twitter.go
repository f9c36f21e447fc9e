package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"stash/internal/platform"
)

const twitterSyndication = "https://cdn.syndication.twimg.com/tweet-result"

type Twitter struct {
	fetch          *Fetcher
	SyndicationURL string
}

func NewTwitter(fetch *Fetcher) *Twitter {
	return &Twitter{fetch: fetch, SyndicationURL: twitterSyndication}
}

type tweetResult struct {
	Text string `json:"text"`
	User struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	MediaDetails []struct {
		MediaURL string `json:"media_url_https"`
		Type     string `json:"type"`
	} `json:"mediaDetails"`
	Photos []struct {
		URL string `json:"url"`
	} `json:"photos"`
	Video *struct {
		Poster string `json:"poster"`
	} `json:"video"`
}

// Syndication reads the public embed endpoint, which serves tweets without login.
func (tw *Twitter) Syndication(ctx context.Context, t Target) (*Result, error) {
	id := platform.TweetID(t.URL)
	if id == "" {
		return nil, errors.New("no tweet id")
	}
	q := url.Values{}
	q.Set("id", id)
	q.Set("token", "x")
	q.Set("lang", "en")
	resp, err := tw.fetch.Get(ctx, tw.SyndicationURL+"?"+q.Encode(), BrowserUserAgent, nil)
	if err != nil {
		return nil, err
	}
	var out tweetResult
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode tweet: %w", err)
	}

	res := &Result{Caption: out.Text, AuthorName: out.User.Name, AuthorHandle: out.User.ScreenName}
	for _, m := range out.MediaDetails {
		res.Images = append(res.Images, m.MediaURL)
		if m.Type == "photo" {
			res.MediaTypes = append(res.MediaTypes, "image")
		} else {
			res.MediaTypes = append(res.MediaTypes, "video")
		}
	}
	if len(res.Images) == 0 {
		for _, p := range out.Photos {
			res.Images = append(res.Images, p.URL)
		}
		if out.Video != nil && out.Video.Poster != "" {
			res.Images = append(res.Images, out.Video.Poster)
		}
	}
	return res, nil
}
