package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	TypeArticle = "article"
	TypeImage   = "image"
	TypeNote    = "note"
	TypeProduct = "product"
	TypeBook    = "book"
	TypeVideo   = "video"
	TypeAudio   = "audio"
	TypeSocial  = "social"
	TypeMovie   = "movie"
)

// Types lists the content types in a stable order.
var Types = []string{TypeArticle, TypeImage, TypeNote, TypeProduct, TypeBook, TypeVideo, TypeAudio, TypeSocial, TypeMovie}

var contentTypes = map[string]bool{
	TypeArticle: true,
	TypeImage:   true,
	TypeNote:    true,
	TypeProduct: true,
	TypeBook:    true,
	TypeVideo:   true,
	TypeAudio:   true,
	TypeSocial:  true,
	TypeMovie:   true,
}

// ValidType reports whether t is one of the fixed card content types.
func ValidType(t string) bool {
	return contentTypes[t]
}

// Card is the unit of saved knowledge. Processing and ProcessingStartedAt back the
// enrichment claim; everything else the pipeline learns lives in MetadataJSON.
type Card struct {
	ID                  string         `gorm:"primaryKey;size:36" json:"id"`
	UserID              string         `gorm:"size:64;index" json:"userId"`
	URL                 string         `gorm:"size:2000" json:"url"`
	Content             string         `gorm:"type:longtext" json:"content"`
	ImageURL            string         `gorm:"size:2000" json:"imageUrl"`
	MediaJSON           datatypes.JSON `gorm:"type:json" json:"media"`
	Title               string         `gorm:"size:500" json:"title"`
	Type                string         `gorm:"size:32;index" json:"type"`
	TagsJSON            datatypes.JSON `gorm:"type:json" json:"tags"`
	MetadataJSON        datatypes.JSON `gorm:"type:json" json:"metadata"`
	EnrichStatus        string         `gorm:"size:16;index;not null;default:''" json:"-"`
	Processing          bool           `gorm:"index;not null;default:false" json:"-"`
	ProcessingStartedAt *time.Time     `json:"-"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

func (c Card) Tags() []string {
	tags := []string{}
	if len(c.TagsJSON) > 0 {
		_ = json.Unmarshal(c.TagsJSON, &tags)
	}
	return tags
}

func (c Card) Media() []string {
	media := []string{}
	if len(c.MediaJSON) > 0 {
		_ = json.Unmarshal(c.MediaJSON, &media)
	}
	return media
}

// Metadata decodes the metadata bag. A malformed column decodes to an empty bag so
// readers never fail on legacy rows.
func (c Card) Metadata() Metadata {
	var md Metadata
	if len(c.MetadataJSON) > 0 {
		if err := json.Unmarshal(c.MetadataJSON, &md); err != nil {
			md = Metadata{}
		}
	}
	md.Processing = c.Processing
	return md
}

func (c *Card) SetTags(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	c.TagsJSON, _ = json.Marshal(tags)
}

func (c *Card) SetMedia(media []string) {
	if media == nil {
		media = []string{}
	}
	c.MediaJSON, _ = json.Marshal(media)
}

func (c *Card) SetMetadata(md Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	c.MetadataJSON = raw
	c.EnrichStatus = md.Status()
	return nil
}

// EnrichmentState classifies the claim state machine from the persisted row.
type EnrichmentState string

const (
	StateUnclaimed EnrichmentState = "unclaimed"
	StateClaimed   EnrichmentState = "claimed"
	StateEnriched  EnrichmentState = "enriched"
	StateFailed    EnrichmentState = "failed"
)

func (c Card) State() EnrichmentState {
	if c.Processing {
		return StateClaimed
	}
	md := c.Metadata()
	switch {
	case md.EnrichmentError != nil && *md.EnrichmentError != "":
		return StateFailed
	case md.EnrichedAt != nil:
		return StateEnriched
	default:
		return StateUnclaimed
	}
}
