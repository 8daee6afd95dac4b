package domain

import "github.com/google/uuid"

type (
	UserID    = uuid.UUID
	PostID    = uuid.UUID
	ChatID    = uuid.UUID
	RoomID    = uuid.UUID
	MessageID = uuid.UUID
)

// Identity is the authenticated principal as reported by the auth service.
type Identity struct {
	ID    UserID `json:"id"`
	Email string `json:"email"`
}

func (i Identity) IsZero() bool { return i.ID == uuid.Nil }

// Owned is implemented by records that carry an owner column.
type Owned interface {
	OwnerID() UserID
}
