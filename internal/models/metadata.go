package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

type EnrichmentTiming struct {
	StartedAt        time.Time `json:"startedAt"`
	Platform         string    `json:"platform"`
	EstimatedTotalMs int64     `json:"estimatedTotalMs"`
	ScrapeMs         int64     `json:"scrapeMs,omitempty"`
	ClassifyMs       int64     `json:"classifyMs,omitempty"`
	TotalMs          int64     `json:"totalMs,omitempty"`
}

type TagLayers struct {
	Primary    []string `json:"primary,omitempty"`
	Contextual []string `json:"contextual,omitempty"`
	Vibe       string   `json:"vibe,omitempty"`
}

// Metadata is the typed view of the open metadata column. Keys this struct does not
// know about are kept in Extra and written back untouched.
type Metadata struct {
	Processing      bool              `json:"processing"`
	NeedsEnrichment *bool             `json:"needsEnrichment,omitempty"`
	Platform        string            `json:"platform,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Timing          *EnrichmentTiming `json:"enrichmentTiming,omitempty"`

	EnrichmentError    *string    `json:"enrichmentError"`
	EnrichmentFailedAt *time.Time `json:"enrichmentFailedAt,omitempty"`
	EnrichedAt         *time.Time `json:"enrichedAt,omitempty"`
	TitleEditedAt      *time.Time `json:"titleEditedAt,omitempty"`
	SummaryEditedAt    *time.Time `json:"summaryEditedAt,omitempty"`

	Author            string   `json:"author,omitempty"`
	AuthorHandle      string   `json:"authorHandle,omitempty"`
	IsCarousel        bool     `json:"isCarousel,omitempty"`
	SlideCount        int      `json:"slideCount,omitempty"`
	MediaTypes        []string `json:"mediaTypes,omitempty"`
	ImagesPersisted   bool     `json:"imagesPersisted,omitempty"`
	ExtractionSource  string   `json:"extractionSource,omitempty"`
	NoImagesExtracted bool     `json:"noImagesExtracted,omitempty"`
	Screenshot        bool     `json:"screenshot,omitempty"`

	Colors           []string   `json:"colors,omitempty"`
	Objects          []string   `json:"objects,omitempty"`
	OCRText          string     `json:"ocrText,omitempty"`
	DetectedPlatform string     `json:"detectedPlatform,omitempty"`
	TagLayers        *TagLayers `json:"tagLayers,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type metadataAlias Metadata

var knownMetadataKeys = func() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeOf(metadataAlias{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var known metadataAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*m = Metadata(known)
	for k, v := range all {
		if knownMetadataKeys[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = map[string]json.RawMessage{}
		}
		m.Extra[k] = v
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return raw, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if knownMetadataKeys[k] {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func (m Metadata) Failed() bool {
	return m.EnrichmentError != nil && *m.EnrichmentError != ""
}

func (m Metadata) Enriched() bool {
	return m.EnrichedAt != nil && !m.Failed()
}

const (
	StatusPending  = "pending"
	StatusEnriched = "enriched"
	StatusFailed   = "failed"
)

// Status is the sweep-facing summary of the bag, mirrored into cards.enrich_status so
// the sweeper can filter in SQL. Cards that never asked for enrichment have none.
func (m Metadata) Status() string {
	switch {
	case m.Enriched():
		return StatusEnriched
	case m.Failed():
		return StatusFailed
	case m.NeedsEnrichment != nil && *m.NeedsEnrichment:
		return StatusPending
	default:
		return ""
	}
}
