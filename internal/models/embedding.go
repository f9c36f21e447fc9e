package models

import (
	"time"

	"gorm.io/datatypes"
)

// CardEmbedding holds one vector per card for similarity search.
type CardEmbedding struct {
	CardID    string         `gorm:"primaryKey;size:36" json:"cardId"`
	UserID    string         `gorm:"size:64;index" json:"userId"`
	Model     string         `gorm:"size:128" json:"model"`
	Dims      int            `json:"dims"`
	Vector    datatypes.JSON `gorm:"type:json" json:"vector"`
	Text      string         `gorm:"type:text" json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
