package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type League struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

func (League) TableName() string { return "leagues" }

func NewLeague(name, description string) (*League, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Invalid("League name is required")
	}
	now := time.Now().UTC()
	return &League{
		ID:          uuid.New(),
		Name:        name,
		Description: optional(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
