// Package store is the card table accessor. Claim is the only concurrency guard for
// enrichment: a conditional update that at most one caller can win.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stash/internal/models"
)

var ErrNotFound = errors.New("card not found")

type Cards struct {
	db *gorm.DB
}

func NewCards(db *gorm.DB) *Cards {
	return &Cards{db: db}
}

func (s *Cards) Insert(ctx context.Context, card *models.Card) error {
	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *Cards) Get(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	if err := s.db.WithContext(ctx).First(&card, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	return &card, nil
}

// Claim flips processing to true when no live attempt holds the card. A claim whose
// processing_started_at is before staleBefore counts as abandoned and is taken over.
func (s *Cards) Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Card{}).
		Where("id = ?", id).
		Where("processing = ? OR processing IS NULL OR processing_started_at IS NULL OR processing_started_at < ?", false, staleBefore.UTC()).
		Updates(map[string]any{
			"processing":            true,
			"processing_started_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim card: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// locked loads the row under a write lock, lets fn compute the columns to change and
// writes them in the same transaction. fn must not touch the database itself.
func (s *Cards) locked(ctx context.Context, id string, fn func(card *models.Card) (map[string]any, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card models.Card
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&card, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock card: %w", err)
		}
		fields, err := fn(&card)
		if err != nil || len(fields) == 0 {
			return err
		}
		if err := tx.Model(&models.Card{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return fmt.Errorf("update card: %w", err)
		}
		return nil
	})
}

func metadataFields(md models.Metadata) (map[string]any, error) {
	var card models.Card
	if err := card.SetMetadata(md); err != nil {
		return nil, err
	}
	return map[string]any{
		"metadata_json": card.MetadataJSON,
		"enrich_status": card.EnrichStatus,
	}, nil
}

// UpdateMetadata applies fn to the stored metadata bag and writes it back without
// touching the claim. It returns the bag as written.
func (s *Cards) UpdateMetadata(ctx context.Context, id string, fn func(md *models.Metadata)) (models.Metadata, error) {
	var out models.Metadata
	err := s.locked(ctx, id, func(card *models.Card) (map[string]any, error) {
		out = card.Metadata()
		fn(&out)
		return metadataFields(out)
	})
	return out, err
}

// Final is everything an enrichment attempt writes at the end.
type Final struct {
	Title    string
	Type     string
	ImageURL string
	Media    []string
	Tags     []string
	Metadata models.Metadata
}

// Finalize hands the locked current row to merge and writes the result, releasing
// the claim in the same update.
func (s *Cards) Finalize(ctx context.Context, id string, merge func(current *models.Card) Final) error {
	return s.locked(ctx, id, func(current *models.Card) (map[string]any, error) {
		f := merge(current)
		fields, err := metadataFields(f.Metadata)
		if err != nil {
			return nil, err
		}
		var card models.Card
		card.SetTags(f.Tags)
		card.SetMedia(f.Media)
		fields["title"] = f.Title
		fields["tags_json"] = card.TagsJSON
		fields["media_json"] = card.MediaJSON
		fields["processing"] = false
		fields["processing_started_at"] = nil
		if f.Type != "" {
			fields["type"] = f.Type
		}
		if f.ImageURL != "" {
			fields["image_url"] = f.ImageURL
		}
		return fields, nil
	})
}

// Release applies fn to the stored metadata and clears the claim. Used for failed
// attempts.
func (s *Cards) Release(ctx context.Context, id string, fn func(md *models.Metadata)) error {
	return s.locked(ctx, id, func(card *models.Card) (map[string]any, error) {
		md := card.Metadata()
		fn(&md)
		md.Processing = false
		fields, err := metadataFields(md)
		if err != nil {
			return nil, err
		}
		fields["processing"] = false
		fields["processing_started_at"] = nil
		return fields, nil
	})
}

// Edit is a user change; nil fields are left alone. Setting Title or Summary marks
// it as user-edited at At, which enrichment then never overwrites.
type Edit struct {
	Title            *string
	Summary          *string
	Tags             []string
	ClearTitleEdit   bool
	ClearSummaryEdit bool
	At               time.Time
}

func (s *Cards) ApplyEdit(ctx context.Context, id string, e Edit) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return s.locked(ctx, id, func(card *models.Card) (map[string]any, error) {
		fields := map[string]any{}
		if e.Tags != nil {
			var tagged models.Card
			tagged.SetTags(e.Tags)
			fields["tags_json"] = tagged.TagsJSON
		}
		if e.Title == nil && e.Summary == nil && !e.ClearTitleEdit && !e.ClearSummaryEdit {
			return fields, nil
		}
		md := card.Metadata()
		if e.Title != nil {
			fields["title"] = *e.Title
			md.TitleEditedAt = &at
		} else if e.ClearTitleEdit {
			md.TitleEditedAt = nil
		}
		if e.Summary != nil {
			md.Summary = *e.Summary
			md.SummaryEditedAt = &at
		} else if e.ClearSummaryEdit {
			md.SummaryEditedAt = nil
		}
		mdFields, err := metadataFields(md)
		if err != nil {
			return nil, err
		}
		for k, v := range mdFields {
			fields[k] = v
		}
		return fields, nil
	})
}

func (s *Cards) ListByUser(ctx context.Context, userID string, limit int) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

const vocabularyScan = 500

// UserTags returns the distinct tags across the owner's most recent cards.
func (s *Cards) UserTags(ctx context.Context, userID string) ([]string, error) {
	var cards []models.Card
	err := s.db.WithContext(ctx).
		Select("tags_json").
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Limit(vocabularyScan).
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("user tags: %w", err)
	}
	seen := map[string]bool{}
	out := []string{}
	for _, c := range cards {
		for _, t := range c.Tags() {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out, nil
}

type SweepQuery struct {
	StaleBefore   time.Time
	IncludeFailed bool
	Limit         int
}

// ListForSweep finds cards with an abandoned claim plus unclaimed cards that still
// want enrichment, oldest first. Failed cards are included only when asked.
func (s *Cards) ListForSweep(ctx context.Context, q SweepQuery) ([]models.Card, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	var stale []models.Card
	if err := s.db.WithContext(ctx).
		Where("processing = ? AND processing_started_at < ?", true, q.StaleBefore.UTC()).
		Order("processing_started_at asc").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return nil, fmt.Errorf("list stale claims: %w", err)
	}
	if len(stale) >= limit {
		return stale, nil
	}

	statuses := []string{models.StatusPending}
	if q.IncludeFailed {
		statuses = append(statuses, models.StatusFailed)
	}
	var idle []models.Card
	if err := s.db.WithContext(ctx).
		Where("processing = ? AND enrich_status IN ?", false, statuses).
		Order("created_at asc").
		Limit(limit - len(stale)).
		Find(&idle).Error; err != nil {
		return nil, fmt.Errorf("list idle cards: %w", err)
	}
	return append(stale, idle...), nil
}
