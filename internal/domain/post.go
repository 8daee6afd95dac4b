package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Post struct {
	ID          PostID     `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"type:text;not null" json:"title"`
	Location    *string    `gorm:"type:text" json:"location"`
	LocationLat *float64   `json:"locationLat"`
	LocationLng *float64   `json:"locationLng"`
	EventDate   *string    `gorm:"type:text;index" json:"eventDate"`
	EventTime   *string    `gorm:"type:text" json:"eventTime"`
	Tag         *string    `gorm:"type:text" json:"tag"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	Attachments StringList `gorm:"type:jsonb" json:"attachments"`
	AuthorID    UserID     `gorm:"type:uuid;not null;index" json:"authorId"`
	AuthorEmail string     `gorm:"type:text;not null;default:''" json:"authorEmail"`
	Views       int64      `gorm:"not null;default:0" json:"views"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updatedAt"`
}

func (Post) TableName() string { return "posts" }

func (p *Post) OwnerID() UserID { return p.AuthorID }

// HasCoordinates reports whether the post can be placed on the map.
func (p *Post) HasCoordinates() bool {
	return p.Location != nil && p.LocationLat != nil && p.LocationLng != nil
}

// PostInput is the create/edit form. It doubles as the draft payload.
type PostInput struct {
	Title       string   `json:"title"`
	Location    string   `json:"location"`
	LocationLat *float64 `json:"locationLat"`
	LocationLng *float64 `json:"locationLng"`
	EventDate   string   `json:"eventDate"`
	EventTime   string   `json:"eventTime"`
	Tag         string   `json:"tag"`
	Content     string   `json:"content"`
}

// IsEmpty is true when no field carries user input.
func (in PostInput) IsEmpty() bool {
	return strings.TrimSpace(in.Title) == "" &&
		strings.TrimSpace(in.Location) == "" &&
		in.LocationLat == nil && in.LocationLng == nil &&
		in.EventDate == "" && in.EventTime == "" &&
		strings.TrimSpace(in.Tag) == "" &&
		strings.TrimSpace(in.Content) == ""
}

// normalize validates the form and returns it with the event time in its
// zero-padded form, so event_time sorts correctly as text.
func (in PostInput) normalize() (PostInput, error) {
	if strings.TrimSpace(in.Title) == "" {
		return in, Invalid("Title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return in, Invalid("Content is required")
	}
	if in.EventDate != "" {
		if _, err := time.Parse(time.DateOnly, in.EventDate); err != nil {
			return in, Invalid("Event date must be YYYY-MM-DD")
		}
	}
	if in.EventTime != "" {
		clock, err := normalizeClock(in.EventTime)
		if err != nil {
			return in, err
		}
		in.EventTime = clock
	}
	if (in.LocationLat == nil) != (in.LocationLng == nil) {
		return in, Invalid("Both latitude and longitude are required")
	}
	if in.LocationLat != nil && (*in.LocationLat < -90 || *in.LocationLat > 90 || *in.LocationLng < -180 || *in.LocationLng > 180) {
		return in, Invalid("Coordinates are out of range")
	}
	return in, nil
}

// normalizeClock accepts H:MM, HH:MM or HH:MM:SS and returns HH:MM, keeping
// seconds only when they are set.
func normalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("15:04", s); err == nil {
		return t.Format("15:04"), nil
	}
	t, err := time.Parse(time.TimeOnly, s)
	if err != nil {
		return "", Invalid("Event time must be HH:MM")
	}
	if t.Second() == 0 {
		return t.Format("15:04"), nil
	}
	return t.Format(time.TimeOnly), nil
}

// Columns validates the form and returns the editable column set.
func (in PostInput) Columns() (map[string]any, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"title":        strings.TrimSpace(in.Title),
		"location":     optional(in.Location),
		"location_lat": in.LocationLat,
		"location_lng": in.LocationLng,
		"event_date":   optional(in.EventDate),
		"event_time":   optional(in.EventTime),
		"tag":          optional(in.Tag),
		"content":      strings.TrimSpace(in.Content),
		"updated_at":   time.Now().UTC(),
	}, nil
}

func NewPost(author Identity, in PostInput) (*Post, error) {
	if author.IsZero() {
		return nil, ErrUnauthenticated
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Post{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(in.Title),
		Location:    optional(in.Location),
		LocationLat: in.LocationLat,
		LocationLng: in.LocationLng,
		EventDate:   optional(in.EventDate),
		EventTime:   optional(in.EventTime),
		Tag:         optional(in.Tag),
		Content:     strings.TrimSpace(in.Content),
		Attachments: StringList{},
		AuthorID:    author.ID,
		AuthorEmail: author.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// FormFromPost seeds an edit form with the stored values.
func FormFromPost(p *Post) PostInput {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return PostInput{
		Title:       p.Title,
		Location:    deref(p.Location),
		LocationLat: p.LocationLat,
		LocationLng: p.LocationLng,
		EventDate:   deref(p.EventDate),
		EventTime:   deref(p.EventTime),
		Tag:         deref(p.Tag),
		Content:     p.Content,
	}
}

type Application struct {
	PostID    PostID    `gorm:"type:uuid;primaryKey" json:"postId"`
	UserID    UserID    `gorm:"type:uuid;primaryKey;index" json:"userId"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

func (Application) TableName() string { return "post_applications" }

func (a *Application) OwnerID() UserID { return a.UserID }
