// Package index keeps one embedding per card so cards can be searched by meaning.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stash/internal/models"
)

// Doc is what gets embedded for a card.
type Doc struct {
	CardID  string
	UserID  string
	Title   string
	Summary string
	Content string
	Tags    []string
}

// Text joins the searchable parts of the card.
func (d Doc) Text() string {
	parts := []string{}
	for _, p := range []string{d.Title, d.Summary, d.Content} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(d.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(d.Tags, ", "))
	}
	return strings.Join(parts, "\n")
}

type Embedder interface {
	EmbedEnabled() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Sink interface {
	Upsert(ctx context.Context, row models.CardEmbedding) error
}

// GormSink stores vectors in the card_embeddings table.
type GormSink struct {
	DB *gorm.DB
}

func (s GormSink) Upsert(ctx context.Context, row models.CardEmbedding) error {
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "card_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "model", "dims", "vector", "text", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

type Indexer struct {
	Embedder Embedder
	Sink     Sink
	Model    func() string
}

// Index embeds doc and writes it. It returns false without error when no embedding
// model is configured or there is nothing to embed.
func (ix *Indexer) Index(ctx context.Context, doc Doc) (bool, error) {
	if ix == nil || ix.Embedder == nil || ix.Sink == nil || !ix.Embedder.EmbedEnabled() {
		return false, nil
	}
	text := doc.Text()
	if text == "" {
		return false, nil
	}
	vec, err := ix.Embedder.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("embed card: %w", err)
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return false, err
	}
	model := ""
	if ix.Model != nil {
		model = ix.Model()
	}
	row := models.CardEmbedding{
		CardID: doc.CardID,
		UserID: doc.UserID,
		Model:  model,
		Dims:   len(vec),
		Vector: raw,
		Text:   text,
	}
	if err := ix.Sink.Upsert(ctx, row); err != nil {
		return false, err
	}
	return true, nil
}
