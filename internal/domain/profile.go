package domain

import (
	"strings"
	"time"
)

type Profile struct {
	ID                   UserID    `gorm:"type:uuid;primaryKey" json:"id"`
	Nickname             string    `gorm:"type:text;not null;default:''" json:"nickname"`
	Email                string    `gorm:"type:text;not null;default:''" json:"email"`
	ProfilePhotoURL      *string   `gorm:"type:text" json:"profilePhotoUrl"`
	VolleyballLevel      *string   `gorm:"type:text" json:"volleyballLevel"`
	VolleyballExperience *string   `gorm:"type:text" json:"volleyballExperience"`
	Bio                  *string   `gorm:"type:text" json:"bio"`
	CreatedAt            time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt            time.Time `gorm:"not null" json:"updatedAt"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) OwnerID() UserID { return p.ID }

// DisplayName falls back to the email when no nickname was chosen.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Email
}

func NewProfile(id Identity, nickname string) (*Profile, error) {
	if id.IsZero() {
		return nil, ErrUnauthenticated
	}
	now := time.Now().UTC()
	return &Profile{
		ID:        id.ID,
		Nickname:  strings.TrimSpace(nickname),
		Email:     id.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	Nickname             string `json:"nickname"`
	VolleyballLevel      string `json:"volleyballLevel"`
	VolleyballExperience string `json:"volleyballExperience"`
	Bio                  string `json:"bio"`
}

// Columns validates the input and returns the column set for an update.
func (in ProfileInput) Columns() (map[string]any, error) {
	nick := strings.TrimSpace(in.Nickname)
	if nick == "" {
		return nil, Invalid("Nickname is required")
	}
	return map[string]any{
		"nickname":              nick,
		"volleyball_level":      optional(in.VolleyballLevel),
		"volleyball_experience": optional(in.VolleyballExperience),
		"bio":                   optional(in.Bio),
		"updated_at":            time.Now().UTC(),
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
