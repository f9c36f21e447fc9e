package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash/internal/models"
)

func cardWith(t *testing.T, title string, tags []string, raw string) *models.Card {
	t.Helper()
	c := &models.Card{ID: "c1", Title: title, MetadataJSON: []byte(raw)}
	c.SetTags(tags)
	return c
}

func TestUnionTagsIsOrderInsensitive(t *testing.T) {
	cases := [][2][]string{
		{{"a", "b"}, {"b", "c"}},
		{{"b", "a"}, {"c", "b"}},
		{{"a", "b", "b"}, {"c", "c", "b"}},
	}
	for _, tc := range cases {
		assert.ElementsMatch(t, []string{"a", "b", "c"}, UnionTags(tc[0], tc[1]))
	}
	assert.Empty(t, UnionTags(nil, []string{""}))
}

func TestReconcileRespectsEditMarkers(t *testing.T) {
	current := cardWith(t, "Mine", []string{"a"},
		`{"titleEditedAt":"2026-01-02T03:04:05Z","summaryEditedAt":"2026-01-02T03:04:05Z","summary":"my words","custom":{"k":1}}`)

	final := Reconcile(current, Computed{
		Title:    "Generated",
		Summary:  "generated summary",
		Type:     models.TypeBook,
		Tags:     []string{"b"},
		Metadata: models.Metadata{Platform: "goodreads", Colors: []string{"#fff"}},
	})

	assert.Equal(t, "Mine", final.Title)
	assert.Equal(t, "my words", final.Metadata.Summary)
	assert.Equal(t, models.TypeBook, final.Type)
	assert.Equal(t, []string{"a", "b"}, final.Tags)
	assert.Equal(t, "goodreads", final.Metadata.Platform)
	assert.Equal(t, []string{"#fff"}, final.Metadata.Colors)
	assert.JSONEq(t, `{"k":1}`, string(final.Metadata.Extra["custom"]))
}

func TestReconcileOverwritesUneditedFields(t *testing.T) {
	msg := "old failure"
	current := cardWith(t, "Raw", nil, `{"author":"kept","summary":"old"}`)
	md := current.Metadata()
	md.EnrichmentError = &msg
	require.NoError(t, current.SetMetadata(md))
	current.SetMedia([]string{"https://cdn.example.com/old.jpg"})

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	final := Reconcile(current, Computed{Title: "New", Summary: "new", Type: "bogus", EnrichedAt: at})

	assert.Equal(t, "New", final.Title)
	assert.Equal(t, "new", final.Metadata.Summary)
	assert.Empty(t, final.Type)
	assert.Equal(t, "kept", final.Metadata.Author)
	assert.Equal(t, []string{"https://cdn.example.com/old.jpg"}, final.Media)
	assert.Nil(t, final.Metadata.EnrichmentError)
	require.NotNil(t, final.Metadata.EnrichedAt)
	assert.True(t, at.Equal(*final.Metadata.EnrichedAt))
	assert.True(t, final.Metadata.Enriched())
}
