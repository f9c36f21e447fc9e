package enrich

import (
	"time"

	"stash/internal/models"
	"stash/internal/store"
)

// Computed is what one enrichment attempt produced, before it is merged into the
// row as it looks at write time.
type Computed struct {
	Title    string
	Summary  string
	Type     string
	Tags     []string
	ImageURL string
	Media    []string
	// Metadata carries the fresh extraction and analysis fields. Title/summary edit
	// markers and unknown keys on it are ignored.
	Metadata   models.Metadata
	EnrichedAt time.Time
}

// Reconcile merges c into the freshly re-read current row. Tags are unioned, title
// and summary are kept when the current row marks them as user-edited, and every
// other computed field is laid over the current metadata.
func Reconcile(current *models.Card, c Computed) store.Final {
	md := current.Metadata()
	fresh := c.Metadata

	title := current.Title
	if md.TitleEditedAt == nil && c.Title != "" {
		title = c.Title
	}
	if md.SummaryEditedAt == nil && c.Summary != "" {
		md.Summary = c.Summary
	}

	md.Platform = fresh.Platform
	md.Timing = fresh.Timing
	md.ImagesPersisted = fresh.ImagesPersisted
	md.Screenshot = fresh.Screenshot
	md.IsCarousel = fresh.IsCarousel
	md.SlideCount = fresh.SlideCount
	md.MediaTypes = fresh.MediaTypes
	md.NoImagesExtracted = false
	setString(&md.Author, fresh.Author)
	setString(&md.AuthorHandle, fresh.AuthorHandle)
	setString(&md.ExtractionSource, fresh.ExtractionSource)
	setString(&md.OCRText, fresh.OCRText)
	setString(&md.DetectedPlatform, fresh.DetectedPlatform)
	if len(fresh.Colors) > 0 {
		md.Colors = fresh.Colors
	}
	if len(fresh.Objects) > 0 {
		md.Objects = fresh.Objects
	}
	if fresh.TagLayers != nil {
		md.TagLayers = fresh.TagLayers
	}

	enrichedAt := c.EnrichedAt.UTC()
	done := false
	md.EnrichedAt = &enrichedAt
	md.EnrichmentError = nil
	md.EnrichmentFailedAt = nil
	md.NeedsEnrichment = &done
	md.Processing = false

	typ := ""
	if models.ValidType(c.Type) {
		typ = c.Type
	}
	media := c.Media
	if len(media) == 0 {
		media = current.Media()
	}
	return store.Final{
		Title:    title,
		Type:     typ,
		ImageURL: c.ImageURL,
		Media:    media,
		Tags:     UnionTags(current.Tags(), c.Tags),
		Metadata: md,
	}
}

// UnionTags returns a ∪ b without duplicates, a's order first.
func UnionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
