package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	embedUnescaper = strings.NewReplacer(
		`\\\/`, "/",
		`\\/`, "/",
		`\/`, "/",
		`\\"`, `"`,
		`\"`, `"`,
		`\\u0026`, "&",
		`\u0026`, "&",
	)
	displayURLPattern = regexp.MustCompile(`"display_url":"([^"]+)"`)
)

type embedSubStrategy struct {
	name string
	fn   func(raw string, doc *goquery.Document) []string
}

// Tried in order; the first one yielding a content image wins.
var embedSubStrategies = []embedSubStrategy{
	{"sidecar", embedSidecar},
	{"display_url", embedDisplayURL},
	{"display_resources", embedDisplayResources},
	{"cdn_img", embedCDNImages},
	{"legacy", embedLegacySelector},
}

// ParseEmbedPage extracts media, caption and author from an Instagram embed page.
func ParseEmbedPage(body []byte) *Result {
	raw := embedUnescaper.Replace(string(body))
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		doc = nil
	}

	res := &Result{}
	if doc != nil {
		res.AuthorHandle = strings.TrimSpace(doc.Find(".UsernameText").First().Text())
		if res.AuthorHandle == "" {
			res.AuthorHandle = strings.TrimSpace(doc.Find(".CaptionUsername").First().Text())
		}
		caption := doc.Find(".Caption").First().Clone()
		caption.Find(".CaptionUsername, .CaptionComments").Remove()
		res.Caption = strings.TrimSpace(caption.Text())
	}

	for _, sub := range embedSubStrategies {
		images := sub.fn(raw, doc)
		cleaned, _ := cleanMedia(images, nil)
		if len(cleaned) == 0 {
			continue
		}
		res.Images = cleaned
		res.Source = "instagram:embed:" + sub.name
		return res
	}
	return res
}

func embedSidecar(raw string, _ *goquery.Document) []string {
	obj := balancedAfter(raw, `"edge_sidecar_to_children":`, '{', '}')
	if obj == "" {
		return nil
	}
	var sidecar struct {
		Edges []struct {
			Node igNode `json:"node"`
		} `json:"edges"`
	}
	if err := json.Unmarshal([]byte(obj), &sidecar); err != nil {
		return nil
	}
	out := make([]string, 0, len(sidecar.Edges))
	for _, e := range sidecar.Edges {
		out = append(out, e.Node.DisplayURL)
	}
	return out
}

func embedDisplayURL(raw string, _ *goquery.Document) []string {
	if m := displayURLPattern.FindStringSubmatch(raw); m != nil {
		return []string{m[1]}
	}
	return nil
}

func embedDisplayResources(raw string, _ *goquery.Document) []string {
	arr := balancedAfter(raw, `"display_resources":`, '[', ']')
	if arr == "" {
		return nil
	}
	var resources []struct {
		Src         string `json:"src"`
		ConfigWidth int    `json:"config_width"`
	}
	if err := json.Unmarshal([]byte(arr), &resources); err != nil {
		return nil
	}
	best, width := "", -1
	for _, r := range resources {
		if r.ConfigWidth > width && r.Src != "" {
			best, width = r.Src, r.ConfigWidth
		}
	}
	if best == "" {
		return nil
	}
	return []string{best}
}

func embedCDNImages(_ string, doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	var out []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			return
		}
		if strings.Contains(src, "cdninstagram.com") || strings.Contains(src, "fbcdn.net") {
			out = append(out, src)
		}
	})
	return out
}

func embedLegacySelector(_ string, doc *goquery.Document) []string {
	if doc == nil {
		return nil
	}
	var out []string
	doc.Find(".EmbeddedMediaImage").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			out = append(out, src)
		}
	})
	return out
}

// balancedAfter returns the JSON value that opens with `open` right after marker,
// matching brackets while skipping string contents.
func balancedAfter(s, marker string, open, close byte) string {
	i := strings.Index(s, marker)
	if i < 0 {
		return ""
	}
	i += len(marker)
	for i < len(s) && (s[i] == ' ' || s[i] == '\n') {
		i++
	}
	if i >= len(s) || s[i] != open {
		return ""
	}
	depth := 0
	inString := false
	for j := i; j < len(s); j++ {
		c := s[j]
		if inString {
			if c == '\\' {
				j++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[i : j+1]
			}
		}
	}
	return ""
}
