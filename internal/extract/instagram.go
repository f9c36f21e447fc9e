package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
)

const (
	instagramWeb       = "https://www.instagram.com"
	instagramOEmbed    = "https://api.instagram.com/oembed/"
	instagramAppID     = "936619743392459"
	instagramGraphPath = "/graphql/query/"
)

var errNoShortcode = errors.New("no instagram shortcode")

// Instagram holds the five strategies for Instagram posts. Base URLs are fields so
// they can point at a test server.
type Instagram struct {
	fetch       *Fetcher
	MirrorURL   string
	OEmbedURL   string
	WebURL      string
	QueryHashes []string
	next        atomic.Uint32
}

func NewInstagram(fetch *Fetcher, mirrorURL string, queryHashes []string) *Instagram {
	return &Instagram{
		fetch:       fetch,
		MirrorURL:   strings.TrimRight(mirrorURL, "/"),
		OEmbedURL:   instagramOEmbed,
		WebURL:      instagramWeb,
		QueryHashes: queryHashes,
	}
}

// Strategies returns the chain order: mirror, oEmbed, GraphQL, embed page, crawler.
func (ig *Instagram) Strategies() []Strategy {
	return []Strategy{
		StrategyFunc("instagram:mirror", ig.Mirror),
		StrategyFunc("instagram:oembed", ig.OEmbed),
		StrategyFunc("instagram:graphql", ig.GraphQL),
		StrategyFunc("instagram:embed", ig.Embed),
		StrategyFunc("instagram:crawler", ig.Crawler),
	}
}

func (ig *Instagram) postURL(base, shortcode string) string {
	return fmt.Sprintf("%s/p/%s/", strings.TrimRight(base, "/"), shortcode)
}

func (ig *Instagram) Mirror(ctx context.Context, t Target) (*Result, error) {
	if t.Shortcode == "" {
		return nil, errNoShortcode
	}
	if ig.MirrorURL == "" {
		return nil, errors.New("no mirror configured")
	}
	resp, err := ig.fetch.Get(ctx, ig.postURL(ig.MirrorURL, t.Shortcode), PreviewUserAgent, nil)
	if err != nil {
		return nil, err
	}
	og := ParseOpenGraph(resp.Body)
	res := og.result()
	if strings.HasPrefix(og.Title, "@") {
		res.AuthorHandle = og.Title
		res.Title = ""
	}
	if og.Video != "" && len(res.Images) > 0 {
		res.MediaTypes = []string{"video"}
	}
	return res, nil
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (ig *Instagram) OEmbed(ctx context.Context, t Target) (*Result, error) {
	if t.Shortcode == "" {
		return nil, errNoShortcode
	}
	q := url.Values{}
	q.Set("url", ig.postURL(instagramWeb, t.Shortcode))
	q.Set("omitscript", "true")
	resp, err := ig.fetch.Get(ctx, ig.OEmbedURL+"?"+q.Encode(), BrowserUserAgent, nil)
	if err != nil {
		return nil, err
	}
	var out oembedResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode oembed: %w", err)
	}
	res := &Result{Caption: out.Title, AuthorHandle: out.AuthorName}
	if out.ThumbnailURL != "" {
		res.Images = []string{out.ThumbnailURL}
	}
	return res, nil
}

type igNode struct {
	Typename   string `json:"__typename"`
	DisplayURL string `json:"display_url"`
	IsVideo    bool   `json:"is_video"`
	VideoURL   string `json:"video_url"`
}

type igShortcodeMedia struct {
	igNode
	Owner struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
	} `json:"owner"`
	Caption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	Sidecar *struct {
		Edges []struct {
			Node igNode `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

func (m igShortcodeMedia) result() *Result {
	res := &Result{AuthorName: m.Owner.FullName, AuthorHandle: m.Owner.Username}
	if len(m.Caption.Edges) > 0 {
		res.Caption = m.Caption.Edges[0].Node.Text
	}
	if m.Sidecar != nil && len(m.Sidecar.Edges) > 0 {
		for _, e := range m.Sidecar.Edges {
			res.Images = append(res.Images, e.Node.DisplayURL)
			res.MediaTypes = append(res.MediaTypes, mediaType(e.Node.IsVideo))
		}
		return res
	}
	if m.DisplayURL != "" {
		res.Images = []string{m.DisplayURL}
		res.MediaTypes = []string{mediaType(m.IsVideo)}
	}
	return res
}

func mediaType(video bool) string {
	if video {
		return "video"
	}
	return "image"
}

// GraphQL queries the private web API, rotating the starting query hash between
// calls so one revoked hash does not fail every request first.
func (ig *Instagram) GraphQL(ctx context.Context, t Target) (*Result, error) {
	if t.Shortcode == "" {
		return nil, errNoShortcode
	}
	if len(ig.QueryHashes) == 0 {
		return nil, errors.New("no query hashes configured")
	}
	vars, _ := json.Marshal(map[string]string{"shortcode": t.Shortcode})
	start := int(ig.next.Add(1) - 1)
	var lastErr error
	for i := range ig.QueryHashes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash := ig.QueryHashes[(start+i)%len(ig.QueryHashes)]
		q := url.Values{}
		q.Set("query_hash", hash)
		q.Set("variables", string(vars))
		endpoint := strings.TrimRight(ig.WebURL, "/") + instagramGraphPath + "?" + q.Encode()
		resp, err := ig.fetch.Get(ctx, endpoint, BrowserUserAgent, map[string]string{
			"X-IG-App-ID":      instagramAppID,
			"X-Requested-With": "XMLHttpRequest",
			"Accept":           "application/json",
		})
		if err != nil {
			lastErr = err
			continue
		}
		if looksLikeLoginWall(resp) {
			lastErr = errors.New("login wall")
			continue
		}
		var out struct {
			Data struct {
				ShortcodeMedia *igShortcodeMedia `json:"shortcode_media"`
			} `json:"data"`
		}
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			lastErr = fmt.Errorf("decode graphql: %w", err)
			continue
		}
		if out.Data.ShortcodeMedia == nil {
			lastErr = errors.New("graphql: no media")
			continue
		}
		return out.Data.ShortcodeMedia.result(), nil
	}
	return nil, lastErr
}

func (ig *Instagram) Embed(ctx context.Context, t Target) (*Result, error) {
	if t.Shortcode == "" {
		return nil, errNoShortcode
	}
	endpoint := ig.postURL(ig.WebURL, t.Shortcode) + "embed/captioned/"
	resp, err := ig.fetch.Get(ctx, endpoint, BrowserUserAgent, nil)
	if err != nil {
		return nil, err
	}
	return ParseEmbedPage(resp.Body), nil
}

// Crawler reads only Open Graph tags, fetched with a search crawler user agent.
func (ig *Instagram) Crawler(ctx context.Context, t Target) (*Result, error) {
	if t.Shortcode == "" {
		return nil, errNoShortcode
	}
	resp, err := ig.fetch.Get(ctx, ig.postURL(ig.WebURL, t.Shortcode), CrawlerUserAgent, nil)
	if err != nil {
		return nil, err
	}
	og := ParseOpenGraph(resp.Body)
	res := og.result()
	if handle, caption, ok := parseInstagramDescription(og.Description); ok {
		res.AuthorHandle = handle
		res.Caption = caption
	}
	res.Title = ""
	return res, nil
}

var instagramDescription = regexp.MustCompile(`(?s)^.*? - ([A-Za-z0-9_.]+) on [^:]+: "(.*)"\.?$`)

// parseInstagramDescription splits `12 likes, 3 comments - user on May 1, 2024: "text"`.
func parseInstagramDescription(desc string) (string, string, bool) {
	m := instagramDescription.FindStringSubmatch(strings.TrimSpace(desc))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
