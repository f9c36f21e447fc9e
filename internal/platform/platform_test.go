package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		url      string
		platform Platform
		typ      string
	}{
		{"https://www.instagram.com/p/Cx1abc_-9/", Instagram, "social"},
		{"https://x.com/jack/status/20", Twitter, "social"},
		{"https://youtu.be/dQw4w9WgXcQ", YouTube, "video"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", YouTube, "video"},
		{"https://www.amazon.com/dp/B000", Amazon, "product"},
		{"https://www.goodreads.com/book/show/1", Goodreads, "book"},
		{"https://open.spotify.com/track/1", Spotify, "audio"},
		{"https://letterboxd.com/film/heat/", Letterboxd, "movie"},
		{"https://someone.substack.com/p/post", Substack, "article"},
		{"https://example.com/post", Unknown, "article"},
		{"reddit.com/r/golang", Reddit, "social"},
		{"", Unknown, "article"},
		{"::not a url::", Unknown, "article"},
		{"https://notinstagram.com/p/x", Unknown, "article"},
	}
	for _, tc := range cases {
		p, typ := Detect(tc.url)
		assert.Equal(t, tc.platform, p, tc.url)
		assert.Equal(t, tc.typ, typ, tc.url)
	}
}

func TestInstagramShortcode(t *testing.T) {
	assert.Equal(t, "Cx1abc_-9", InstagramShortcode("https://www.instagram.com/p/Cx1abc_-9/?igsh=abc"))
	assert.Equal(t, "C2reel", InstagramShortcode("https://instagram.com/reel/C2reel/"))
	assert.Equal(t, "C3user", InstagramShortcode("https://www.instagram.com/someone/p/C3user/"))
	assert.Empty(t, InstagramShortcode("https://www.instagram.com/share/BAabc"))
}

func TestIDs(t *testing.T) {
	assert.Equal(t, "1234567890", TweetID("https://twitter.com/user/status/1234567890?s=20"))
	assert.Equal(t, "dQw4w9WgXcQ", YouTubeID("https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ"))
	assert.Equal(t, "dQw4w9WgXcQ", YouTubeID("https://www.youtube.com/shorts/dQw4w9WgXcQ"))
	assert.Empty(t, TweetID("https://x.com/user"))
}

func TestIsShareLink(t *testing.T) {
	assert.True(t, IsShareLink("https://www.instagram.com/share/reel/BAabc"))
	assert.True(t, IsShareLink("https://vm.tiktok.com/ZMabc/"))
	assert.True(t, IsShareLink("https://www.reddit.com/r/golang/s/abc123"))
	assert.False(t, IsShareLink("https://www.instagram.com/p/Cx1abc/"))
	assert.False(t, IsShareLink(""))
}
