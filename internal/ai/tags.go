package ai

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var tagJunk = regexp.MustCompile(`[^a-z0-9\-]+`)

// NormalizeTag lowercases and hyphenates a tag: "Data Viz" becomes "data-viz".
func NormalizeTag(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.TrimPrefix(t, "#")
	t = strings.Join(strings.Fields(t), "-")
	t = strings.ReplaceAll(t, "_", "-")
	t = tagJunk.ReplaceAllString(t, "")
	for strings.Contains(t, "--") {
		t = strings.ReplaceAll(t, "--", "-")
	}
	return strings.Trim(t, "-")
}

func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, NormalizeTag(t))
	}
	return NormalizeList(out)
}

// AlignTags maps freshly generated tags onto the owner's existing vocabulary where
// a tag is a synonym of one already in use. Tags with no match are kept.
func (c *Client) AlignTags(ctx context.Context, tags, vocabulary []string) ([]string, error) {
	if len(tags) == 0 || len(vocabulary) == 0 {
		return tags, nil
	}
	if len(vocabulary) > 300 {
		vocabulary = vocabulary[:300]
	}
	system := "You normalize tags. Return strict JSON only."
	user := "Existing tags: " + strings.Join(vocabulary, ", ") + "\n" +
		"New tags: " + strings.Join(tags, ", ") + "\n" +
		"For each new tag, replace it with an existing tag if they mean the same thing; otherwise keep it. " +
		`Return JSON: {"tags": [..]} in the same order.`

	raw, err := c.ChatJSON(ctx, system, user, 0)
	if err != nil {
		return nil, err
	}
	raw = ExtractJSON(raw)
	if raw == "" {
		return nil, errors.New("llm invalid json")
	}
	var out struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	aligned := NormalizeTags(out.Tags)
	if len(aligned) == 0 {
		return tags, nil
	}
	return aligned, nil
}
