package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash/internal/platform"
)

func igTarget() Target {
	return Target{URL: "https://www.instagram.com/p/ABC123/", Platform: platform.Instagram, Shortcode: "ABC123"}
}

func TestParseOpenGraph(t *testing.T) {
	body := []byte(`<html><head>
		<title>Fallback</title>
		<meta property="og:title" content="Hello &amp; welcome">
		<meta property="og:description" content="A post">
		<meta property="og:image" content="https://cdn.example.com/1.jpg">
		<meta property="og:image" content="https://cdn.example.com/2.jpg">
		<meta name="twitter:image" content="https://cdn.example.com/tw.jpg">
	</head></html>`)
	og := ParseOpenGraph(body)
	assert.Equal(t, "Hello & welcome", og.Title)
	assert.Equal(t, "A post", og.Description)
	assert.Equal(t, []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"}, og.Images)

	og = ParseOpenGraph([]byte(`<html><head><title> Only title </title><meta name="twitter:image" content="https://x.com/a.png"></head></html>`))
	assert.Equal(t, "Only title", og.Title)
	assert.Equal(t, []string{"https://x.com/a.png"}, og.Images)
}

func TestParseEmbedPageSidecar(t *testing.T) {
	body := `<html><body>
	<div class="Caption"><a class="CaptionUsername">chef</a> Three slides of pasta</div>
	<span class="UsernameText">chef</span>
	<script>window.__additionalDataLoaded('extra',{\"shortcode_media\":{\"edge_sidecar_to_children\":{\"edges\":[` +
		`{\"node\":{\"display_url\":\"https:\/\/scontent.cdninstagram.com\/v\/1.jpg\"}},` +
		`{\"node\":{\"display_url\":\"https:\/\/scontent.cdninstagram.com\/v\/2.jpg\"}},` +
		`{\"node\":{\"display_url\":\"https:\/\/scontent.cdninstagram.com\/v\/3.jpg\"}}]}}});</script>
	</body></html>`
	res := ParseEmbedPage([]byte(body))
	assert.Equal(t, "instagram:embed:sidecar", res.Source)
	assert.Len(t, res.Images, 3)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/1.jpg", res.Images[0])
	assert.Equal(t, "chef", res.AuthorHandle)
	assert.Equal(t, "Three slides of pasta", res.Caption)
}

func TestParseEmbedPageFallbacks(t *testing.T) {
	resources := `<script>{"display_resources":[{"src":"https://scontent.cdninstagram.com/v/small.jpg","config_width":640},` +
		`{"src":"https://scontent.cdninstagram.com/v/big.jpg","config_width":1080}]}</script>`
	res := ParseEmbedPage([]byte(resources))
	assert.Equal(t, "instagram:embed:display_resources", res.Source)
	assert.Equal(t, []string{"https://scontent.cdninstagram.com/v/big.jpg"}, res.Images)

	cdn := `<img src="https://scontent.cdninstagram.com/v/t51.2885-19/avatar.jpg"><img src="https://scontent.cdninstagram.com/v/post.jpg">`
	res = ParseEmbedPage([]byte(cdn))
	assert.Equal(t, "instagram:embed:cdn_img", res.Source)
	assert.Equal(t, []string{"https://scontent.cdninstagram.com/v/post.jpg"}, res.Images)

	legacy := `<img class="EmbeddedMediaImage" src="https://media.example.com/legacy.jpg">`
	res = ParseEmbedPage([]byte(legacy))
	assert.Equal(t, "instagram:embed:legacy", res.Source)

	res = ParseEmbedPage([]byte(`<html></html>`))
	assert.True(t, res.Empty())
}

func TestInstagramGraphQLRotatesHashes(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := r.URL.Query().Get("query_hash")
		seen = append(seen, hash)
		assert.Equal(t, instagramAppID, r.Header.Get("X-IG-App-ID"))
		if hash == "revoked" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"data":{"shortcode_media":{
			"display_url":"https://scontent.cdninstagram.com/v/cover.jpg",
			"owner":{"username":"chef","full_name":"The Chef"},
			"edge_media_to_caption":{"edges":[{"node":{"text":"pasta night"}}]},
			"edge_sidecar_to_children":{"edges":[
				{"node":{"display_url":"https://scontent.cdninstagram.com/v/1.jpg","is_video":false}},
				{"node":{"display_url":"https://scontent.cdninstagram.com/v/2.jpg","is_video":true}}]}}}}`)
	}))
	defer srv.Close()

	ig := NewInstagram(NewFetcher(time.Second), "", []string{"revoked", "good"})
	ig.WebURL = srv.URL

	res, err := ig.GraphQL(context.Background(), igTarget())
	require.NoError(t, err)
	assert.Equal(t, []string{"revoked", "good"}, seen)
	assert.Len(t, res.Images, 2)
	assert.Equal(t, []string{"image", "video"}, res.MediaTypes)
	assert.Equal(t, "chef", res.AuthorHandle)
	assert.Equal(t, "pasta night", res.Caption)

	seen = nil
	_, err = ig.GraphQL(context.Background(), igTarget())
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, seen)
}

func TestInstagramChainFallsThroughToEmbed(t *testing.T) {
	var mirrorCalls, embedCalls, crawlerCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/mirror/"):
			mirrorCalls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		case r.URL.Path == "/oembed/":
			fmt.Fprint(w, `{"title":"caption only","author_name":"chef"}`)
		case r.URL.Path == instagramGraphPath:
			http.Redirect(w, r, "/accounts/login/", http.StatusFound)
		case r.URL.Path == "/accounts/login/":
			fmt.Fprint(w, "<html>login</html>")
		case strings.HasSuffix(r.URL.Path, "/embed/captioned/"):
			embedCalls.Add(1)
			fmt.Fprint(w, `<img src="https://scontent.cdninstagram.com/v/post.jpg">`)
		default:
			crawlerCalls.Add(1)
			fmt.Fprint(w, `<meta property="og:image" content="https://scontent.cdninstagram.com/v/og.jpg">`)
		}
	}))
	defer srv.Close()

	ig := NewInstagram(NewFetcher(time.Second), srv.URL+"/mirror", []string{"h1", "h2"})
	ig.OEmbedURL = srv.URL + "/oembed/"
	ig.WebURL = srv.URL

	res, attempts, err := NewChain(time.Second, ig.Strategies()...).Run(context.Background(), igTarget())
	require.NoError(t, err)
	assert.Equal(t, "instagram:embed:cdn_img", res.Source)
	assert.Equal(t, int32(1), mirrorCalls.Load())
	assert.Equal(t, int32(1), embedCalls.Load())
	assert.Equal(t, int32(0), crawlerCalls.Load())
	require.Len(t, attempts, 4)
	assert.ErrorIs(t, attempts[1].Err, ErrEmpty)
	assert.ErrorContains(t, attempts[2].Err, "login wall")
}

func TestParseInstagramDescription(t *testing.T) {
	handle, caption, ok := parseInstagramDescription(`1,204 likes, 33 comments - the.chef on March 3, 2024: "Sunday sauce"`)
	require.True(t, ok)
	assert.Equal(t, "the.chef", handle)
	assert.Equal(t, "Sunday sauce", caption)

	_, _, ok = parseInstagramDescription("plain description")
	assert.False(t, ok)
}

func TestTwitterSyndication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"text":"look","user":{"name":"Ann","screen_name":"ann"},
			"mediaDetails":[{"media_url_https":"https://pbs.twimg.com/media/a.jpg","type":"photo"},
			{"media_url_https":"https://pbs.twimg.com/ext_tw_video_thumb/b.jpg","type":"video"}]}`)
	}))
	defer srv.Close()

	tw := NewTwitter(NewFetcher(time.Second))
	tw.SyndicationURL = srv.URL
	res, err := tw.Syndication(context.Background(), Target{URL: "https://x.com/ann/status/42"})
	require.NoError(t, err)
	assert.Len(t, res.Images, 2)
	assert.Equal(t, []string{"image", "video"}, res.MediaTypes)
	assert.Equal(t, "ann", res.AuthorHandle)
}

func TestRedditGallery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ".json"))
		fmt.Fprint(w, `[{"data":{"children":[{"data":{"title":"my build","author":"maker","is_gallery":true,
			"gallery_data":{"items":[{"media_id":"b"},{"media_id":"a"}]},
			"media_metadata":{"a":{"e":"Image","s":{"u":"https://preview.redd.it/a.jpg?x=1&amp;y=2"}},
			                  "b":{"e":"Image","s":{"u":"https://preview.redd.it/b.jpg"}}}}}]}}]`)
	}))
	defer srv.Close()

	res, err := NewReddit(NewFetcher(time.Second)).JSON(context.Background(), Target{URL: srv.URL + "/r/diy/comments/xyz/my_build/"})
	require.NoError(t, err)
	res.normalize("reddit:json")
	assert.Equal(t, []string{"https://preview.redd.it/b.jpg", "https://preview.redd.it/a.jpg?x=1&y=2"}, res.Images)
	assert.Equal(t, "my build", res.Title)
}

func TestYouTubeThumbnail(t *testing.T) {
	res, err := YouTubeThumbnail(context.Background(), Target{URL: "https://youtu.be/dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"}, res.Images)

	_, err = YouTubeThumbnail(context.Background(), Target{URL: "https://example.com"})
	assert.Error(t, err)
}

func TestGenericResolvesRelativeImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:title" content="Recipe"><meta property="og:image" content="/img/hero.jpg"></head>
			<body><article><p>Some article text.</p></article></body></html>`)
	}))
	defer srv.Close()

	res, err := NewGeneric(NewFetcher(time.Second)).Extract(context.Background(), Target{URL: srv.URL + "/post"})
	require.NoError(t, err)
	assert.Equal(t, "Recipe", res.Title)
	assert.Equal(t, []string{srv.URL + "/img/hero.jpg"}, res.Images)
}

func TestResolverFollowsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/s/abc" {
			http.Redirect(w, r, "/final/post", http.StatusMovedPermanently)
			return
		}
	}))
	defer srv.Close()

	r := NewResolver()
	r.isShare = func(string) bool { return true }
	assert.Equal(t, srv.URL+"/final/post", r.Resolve(context.Background(), srv.URL+"/s/abc"))

	// cached: the server is gone but the answer is not
	srv.Close()
	assert.Equal(t, srv.URL+"/final/post", r.Resolve(context.Background(), srv.URL+"/s/abc"))
}

func TestResolverFallsBackOnFailure(t *testing.T) {
	r := NewResolver()
	r.isShare = func(string) bool { return true }
	r.timeout = 200 * time.Millisecond
	raw := "http://127.0.0.1:1/s/unreachable"
	assert.Equal(t, raw, r.Resolve(context.Background(), raw))

	plain := "https://example.com/article"
	assert.Equal(t, plain, NewResolver().Resolve(context.Background(), plain))
}
