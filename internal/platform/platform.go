// Package platform maps URLs to the source platform they belong to. Everything here
// is pure and never fails: anything unrecognised is Unknown.
package platform

import (
	"net/url"
	"regexp"
	"strings"

	"stash/internal/models"
)

type Platform string

const (
	Unknown    Platform = "unknown"
	Instagram  Platform = "instagram"
	Twitter    Platform = "twitter"
	TikTok     Platform = "tiktok"
	YouTube    Platform = "youtube"
	Vimeo      Platform = "vimeo"
	Reddit     Platform = "reddit"
	Pinterest  Platform = "pinterest"
	Threads    Platform = "threads"
	Facebook   Platform = "facebook"
	LinkedIn   Platform = "linkedin"
	Amazon     Platform = "amazon"
	Ebay       Platform = "ebay"
	Etsy       Platform = "etsy"
	Goodreads  Platform = "goodreads"
	IMDb       Platform = "imdb"
	Letterboxd Platform = "letterboxd"
	Spotify    Platform = "spotify"
	SoundCloud Platform = "soundcloud"
	Medium     Platform = "medium"
	Substack   Platform = "substack"
	GitHub     Platform = "github"
)

// hosts maps a registrable domain (or a distinctive suffix) to its platform.
var hosts = []struct {
	suffix   string
	platform Platform
}{
	{"instagram.com", Instagram},
	{"instagr.am", Instagram},
	{"ddinstagram.com", Instagram},
	{"twitter.com", Twitter},
	{"x.com", Twitter},
	{"t.co", Twitter},
	{"tiktok.com", TikTok},
	{"youtube.com", YouTube},
	{"youtu.be", YouTube},
	{"vimeo.com", Vimeo},
	{"reddit.com", Reddit},
	{"redd.it", Reddit},
	{"pinterest.com", Pinterest},
	{"pin.it", Pinterest},
	{"threads.net", Threads},
	{"threads.com", Threads},
	{"facebook.com", Facebook},
	{"fb.watch", Facebook},
	{"linkedin.com", LinkedIn},
	{"amazon.com", Amazon},
	{"amazon.co.uk", Amazon},
	{"amazon.de", Amazon},
	{"amzn.to", Amazon},
	{"ebay.com", Ebay},
	{"etsy.com", Etsy},
	{"goodreads.com", Goodreads},
	{"imdb.com", IMDb},
	{"letterboxd.com", Letterboxd},
	{"spotify.com", Spotify},
	{"soundcloud.com", SoundCloud},
	{"medium.com", Medium},
	{"substack.com", Substack},
	{"github.com", GitHub},
}

var defaultTypes = map[Platform]string{
	Instagram:  models.TypeSocial,
	Twitter:    models.TypeSocial,
	Threads:    models.TypeSocial,
	Facebook:   models.TypeSocial,
	LinkedIn:   models.TypeSocial,
	Reddit:     models.TypeSocial,
	Pinterest:  models.TypeImage,
	TikTok:     models.TypeVideo,
	YouTube:    models.TypeVideo,
	Vimeo:      models.TypeVideo,
	Amazon:     models.TypeProduct,
	Ebay:       models.TypeProduct,
	Etsy:       models.TypeProduct,
	Goodreads:  models.TypeBook,
	IMDb:       models.TypeMovie,
	Letterboxd: models.TypeMovie,
	Spotify:    models.TypeAudio,
	SoundCloud: models.TypeAudio,
}

// Detect returns the platform of rawURL and the content type a card from that
// platform defaults to.
func Detect(rawURL string) (Platform, string) {
	p := FromURL(rawURL)
	return p, DefaultType(p)
}

func FromURL(rawURL string) Platform {
	host := hostOf(rawURL)
	if host == "" {
		return Unknown
	}
	for _, h := range hosts {
		if host == h.suffix || strings.HasSuffix(host, "."+h.suffix) {
			return h.platform
		}
	}
	return Unknown
}

func DefaultType(p Platform) string {
	if t, ok := defaultTypes[p]; ok {
		return t
	}
	return models.TypeArticle
}

func hostOf(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

var (
	instagramShortcode = regexp.MustCompile(`instagram\.com/(?:[A-Za-z0-9_.]+/)?(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)`)
	tweetID            = regexp.MustCompile(`(?:twitter|x)\.com/[^/]+/status(?:es)?/(\d+)`)
	youtubeID          = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|shorts/|embed/|live/)|youtu\.be/)([A-Za-z0-9_-]{11})`)
)

// InstagramShortcode extracts the post shortcode from a canonical post/reel URL.
func InstagramShortcode(rawURL string) string {
	if IsShareLink(rawURL) {
		return ""
	}
	if m := instagramShortcode.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

func TweetID(rawURL string) string {
	if m := tweetID.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

func YouTubeID(rawURL string) string {
	if m := youtubeID.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// IsShareLink reports URLs that are opaque redirects and must be resolved before a
// shortcode or id can be read from them.
func IsShareLink(rawURL string) bool {
	host := hostOf(rawURL)
	switch {
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		u, err := url.Parse(rawURL)
		return err == nil && strings.HasPrefix(u.Path, "/share/")
	case host == "vm.tiktok.com", host == "vt.tiktok.com":
		return true
	case host == "t.co", host == "pin.it", host == "amzn.to", host == "redd.it", host == "fb.watch":
		return true
	case host == "reddit.com" || strings.HasSuffix(host, ".reddit.com"):
		u, err := url.Parse(rawURL)
		return err == nil && strings.Contains(u.Path, "/s/")
	}
	return false
}
