package extract

import (
	"html"
	"net/url"
	"strings"
)

// Asset URL fragments that never point at post content: profile pictures, fixed
// size avatars, static UI sprites.
var nonContentPatterns = []string{
	"/t51.2885-19/",
	"s150x150",
	"p150x150",
	"s320x320",
	"_s.jpg",
	"profile_images",
	"profile_pic",
	"/rsrc.php",
	"static.cdninstagram.com",
	"/emoji/",
	"favicon",
}

func decodeEntities(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\/`, "/")
	return html.UnescapeString(s)
}

// CleanImageURL decodes an extracted URL and reports whether it looks like content.
func CleanImageURL(raw string) (string, bool) {
	v := strings.TrimSpace(decodeEntities(raw))
	if v == "" {
		return "", false
	}
	if strings.HasPrefix(v, "//") {
		v = "https:" + v
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	lower := strings.ToLower(v)
	for _, p := range nonContentPatterns {
		if strings.Contains(lower, p) {
			return "", false
		}
	}
	return v, true
}

// cleanMedia drops invalid and duplicate URLs, keeping order and each URL's media type.
func cleanMedia(images, types []string) ([]string, []string) {
	outImages := make([]string, 0, len(images))
	outTypes := make([]string, 0, len(images))
	seen := map[string]bool{}
	for i, raw := range images {
		v, ok := CleanImageURL(raw)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		outImages = append(outImages, v)
		t := "image"
		if i < len(types) && types[i] != "" {
			t = types[i]
		}
		outTypes = append(outTypes, t)
	}
	return outImages, outTypes
}
