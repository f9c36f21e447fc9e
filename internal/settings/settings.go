package settings

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stash/internal/ai"
	"stash/internal/models"
)

const (
	KeyLLMBaseURL     = "llm.base_url"
	KeyLLMAPIKey      = "llm.api_key"
	KeyLLMModel       = "llm.model"
	KeyLLMVisionModel = "llm.vision_model"
	KeyLLMEmbedModel  = "llm.embed_model"
)

var llmKeys = []string{KeyLLMBaseURL, KeyLLMAPIKey, KeyLLMModel, KeyLLMVisionModel, KeyLLMEmbedModel}

// LoadLLM reads the persisted model settings. Missing keys stay empty so the
// caller can layer them over environment defaults with ai.Client.Configure.
func LoadLLM(ctx context.Context, db *gorm.DB) (ai.Settings, error) {
	out := ai.Settings{}
	var rows []models.AppSetting
	if err := db.WithContext(ctx).Where("setting_key IN ?", llmKeys).Find(&rows).Error; err != nil {
		return out, err
	}
	for _, row := range rows {
		switch row.Key {
		case KeyLLMBaseURL:
			out.BaseURL = row.Value
		case KeyLLMAPIKey:
			out.APIKey = row.Value
		case KeyLLMModel:
			out.Model = row.Value
		case KeyLLMVisionModel:
			out.VisionModel = row.Value
		case KeyLLMEmbedModel:
			out.EmbedModel = row.Value
		}
	}
	return out, nil
}

// SaveLLM upserts the non-empty fields of cfg.
func SaveLLM(ctx context.Context, db *gorm.DB, cfg ai.Settings) error {
	rows := []models.AppSetting{
		{Key: KeyLLMBaseURL, Value: cfg.BaseURL},
		{Key: KeyLLMAPIKey, Value: cfg.APIKey},
		{Key: KeyLLMModel, Value: cfg.Model},
		{Key: KeyLLMVisionModel, Value: cfg.VisionModel},
		{Key: KeyLLMEmbedModel, Value: cfg.EmbedModel},
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if row.Value == "" {
				continue
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "setting_key"}},
				UpdateAll: true,
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
