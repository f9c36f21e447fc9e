package graphflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash/internal/ai"
	"stash/internal/models"
)

func llmReplying(t *testing.T, content string) *ai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return ai.NewClient(ai.Settings{BaseURL: srv.URL, APIKey: "key", Model: "m"}, time.Second)
}

func TestClassifierGraph(t *testing.T) {
	llm := llmReplying(t, `{"type":"Social","title":"chef: Sunday sauce, three ways","summary":"Three regional takes on ragu with timings.",
		"primary_tags":["Ragu","Sunday Sauce","extra"],"contextual_tags":["Italian Cooking"],"vibe_tag":"Tactile"}`)

	c, err := NewClassifier()
	require.NoError(t, err)

	out, err := c.Classify(context.Background(), ClassifyInput{
		Platform: "instagram", DefaultType: models.TypeSocial, Author: "chef",
		Caption: "chefSunday sauce three ways. Recipe in bio", LLM: llm,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TypeSocial, out.Type)
	assert.Equal(t, "Sunday sauce, three ways", out.Title)
	assert.Equal(t, []string{"ragu", "sunday-sauce"}, out.TagLayers.Primary)
	assert.Equal(t, []string{"italian-cooking"}, out.TagLayers.Contextual)
	assert.Equal(t, "tactile", out.TagLayers.Vibe)
	assert.Equal(t, []string{"ragu", "sunday-sauce", "italian-cooking", "tactile"}, out.Tags)
}

func TestClassifierGraphRepairsReply(t *testing.T) {
	llm := llmReplying(t, `{"type":"nonsense","title":"Instagram Post","summary":"Sunday sauce three ways","primary_tags":[],"contextual_tags":[]}`)

	c, err := NewClassifier()
	require.NoError(t, err)

	out, err := c.Classify(context.Background(), ClassifyInput{
		DefaultType: models.TypeSocial, Author: "chef", Caption: "@chef: Sunday sauce three ways. Recipe in bio", LLM: llm,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TypeSocial, out.Type)
	assert.Equal(t, "Sunday sauce three ways.", out.Title)
	assert.Empty(t, out.Summary)
	assert.Equal(t, "contemplative", out.TagLayers.Vibe)
	assert.Equal(t, []string{"contemplative"}, out.Tags)
}

func TestClassifierGraphWithoutLLM(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), ClassifyInput{Caption: "x"})
	assert.ErrorContains(t, err, ai.ErrNotConfigured.Error())
}

func TestStripAuthorPrefix(t *testing.T) {
	assert.Equal(t, "Sunday sauce", StripAuthorPrefix("chefSunday sauce", "chef"))
	assert.Equal(t, "Sunday sauce", StripAuthorPrefix("@chef: Sunday sauce", "@chef"))
	assert.Equal(t, "Sunday sauce", StripAuthorPrefix("Chef - Sunday sauce", "chef"))
	assert.Equal(t, "chef", StripAuthorPrefix("chef", "chef"))
	assert.Equal(t, "Sunday sauce", StripAuthorPrefix("Sunday sauce", ""))
}

func TestSmartTruncate(t *testing.T) {
	assert.Equal(t, "First sentence here.", SmartTruncate("First sentence here. Second one is longer.", 80))
	long := "A very long caption without any sentence break that just keeps going and going past the limit"
	got := SmartTruncate(long, 40)
	assert.LessOrEqual(t, len([]rune(got)), 41)
	assert.True(t, len(got) > 0 && got[len(got)-len("…"):] == "…")
	assert.Equal(t, "short", SmartTruncate("  short ", 80))
	assert.Empty(t, SmartTruncate("", 80))
}

func TestIsCaptionCopy(t *testing.T) {
	assert.True(t, IsCaptionCopy("Sunday sauce three ways", "Sunday sauce, three ways! Recipe in bio"))
	assert.False(t, IsCaptionCopy("Regional ragu variants with timings", "Sunday sauce three ways"))
	assert.False(t, IsCaptionCopy("", "caption"))
	assert.True(t, IsGenericTitle("Instagram Post"))
	assert.False(t, IsGenericTitle("Sunday sauce"))
}
