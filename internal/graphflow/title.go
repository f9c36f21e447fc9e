package graphflow

import (
	"regexp"
	"strings"
	"unicode"
)

var genericTitles = map[string]bool{}

func init() {
	for _, t := range []string{
		"instagram", "instagram post", "instagram photo", "instagram video", "instagram login",
		"login • instagram", "post", "photo", "video", "image", "untitled",
		"x", "twitter", "tweet", "reddit", "reddit - dive into anything",
	} {
		genericTitles[t] = true
	}
}

func IsGenericTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return true
	}
	return genericTitles[t]
}

var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// StripAuthorPrefix removes "author:", "@author" or a glued "authorCaption" from the
// start of a caption.
func StripAuthorPrefix(caption, author string) string {
	caption = strings.TrimSpace(caption)
	author = strings.TrimPrefix(strings.TrimSpace(author), "@")
	if caption == "" || author == "" {
		return caption
	}
	for _, prefix := range []string{"@" + author, author} {
		if len(caption) < len(prefix) || !strings.EqualFold(caption[:len(prefix)], prefix) {
			continue
		}
		rest := caption[len(prefix):]
		rest = strings.TrimLeftFunc(rest, func(r rune) bool {
			return unicode.IsSpace(r) || r == ':' || r == '-' || r == '|' || r == '•'
		})
		if rest != "" {
			return rest
		}
	}
	return caption
}

// SmartTruncate keeps the first sentence when it fits within max runes, otherwise
// cuts at the last word boundary and adds an ellipsis.
func SmartTruncate(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		first := strings.TrimSpace(text[:loc[0]+1])
		if len([]rune(first)) >= 10 && len([]rune(first)) <= max {
			return first
		}
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	cut := string(r[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-") + "…"
}

// IsCaptionCopy reports summaries that merely repeat the caption.
func IsCaptionCopy(summary, caption string) bool {
	s := squash(summary)
	c := squash(caption)
	if s == "" || c == "" {
		return false
	}
	if s == c || strings.HasPrefix(c, s) {
		return true
	}
	return len(s) > 40 && strings.Contains(c, s)
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
