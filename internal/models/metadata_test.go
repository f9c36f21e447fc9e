package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_UnknownKeysRoundTrip(t *testing.T) {
	raw := `{"platform":"instagram","summary":"s","legacyFlag":true,"pinterest":{"board":"x"}}`

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(raw), &md))
	assert.Equal(t, "instagram", md.Platform)
	require.Len(t, md.Extra, 2)
	assert.JSONEq(t, `true`, string(md.Extra["legacyFlag"]))

	md.Summary = "updated"
	out, err := json.Marshal(md)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Equal(t, "updated", generic["summary"])
	assert.Equal(t, true, generic["legacyFlag"])
	assert.Equal(t, map[string]any{"board": "x"}, generic["pinterest"])
}

func TestMetadata_ExtraCannotShadowKnownFields(t *testing.T) {
	md := Metadata{
		Platform: "reddit",
		Extra:    map[string]json.RawMessage{"platform": json.RawMessage(`"spoofed"`)},
	}
	out, err := json.Marshal(md)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"platform":"reddit"`)
	assert.NotContains(t, string(out), "spoofed")
}

func TestCard_State(t *testing.T) {
	now := time.Now()
	msg := "boom"

	var c Card
	assert.Equal(t, StateUnclaimed, c.State())

	c.Processing = true
	assert.Equal(t, StateClaimed, c.State())

	c.Processing = false
	require.NoError(t, c.SetMetadata(Metadata{EnrichedAt: &now}))
	assert.Equal(t, StateEnriched, c.State())

	require.NoError(t, c.SetMetadata(Metadata{EnrichmentError: &msg, EnrichmentFailedAt: &now}))
	assert.Equal(t, StateFailed, c.State())
}

func TestCard_MalformedMetadataDecodesEmpty(t *testing.T) {
	c := Card{MetadataJSON: []byte(`not json`), Processing: true}
	md := c.Metadata()
	assert.True(t, md.Processing)
	assert.Empty(t, md.Platform)
}
