package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID        RoomID    `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Topic     string    `gorm:"type:text;not null" json:"topic"`
	IsPrivate bool      `gorm:"not null;default:false" json:"isPrivate"`
	CreatedBy UserID    `gorm:"type:uuid;not null" json:"createdBy"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`
}

func (Room) TableName() string { return "chat_rooms" }

func (r *Room) OwnerID() UserID { return r.CreatedBy }

// RoomCredential holds the password hash of a private room. It never leaves
// the store.
type RoomCredential struct {
	RoomID     RoomID    `gorm:"type:uuid;primaryKey"`
	Algo       string    `gorm:"type:text;not null"`
	Hash       []byte    `gorm:"not null"`
	Salt       []byte    `gorm:"not null"`
	ParamsJSON []byte    `gorm:"not null"`
	Version    int       `gorm:"not null;default:1"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (RoomCredential) TableName() string { return "chat_room_credentials" }

func (c *RoomCredential) GetAlgo() string       { return c.Algo }
func (c *RoomCredential) GetHash() []byte       { return c.Hash }
func (c *RoomCredential) GetSalt() []byte       { return c.Salt }
func (c *RoomCredential) GetParamsJSON() []byte { return c.ParamsJSON }
func (c *RoomCredential) GetVersion() int       { return c.Version }

type RoomMember struct {
	RoomID   RoomID    `gorm:"type:uuid;primaryKey" json:"roomId"`
	UserID   UserID    `gorm:"type:uuid;primaryKey;index" json:"userId"`
	JoinedAt time.Time `gorm:"not null" json:"joinedAt"`
}

func (RoomMember) TableName() string { return "chat_room_members" }

type RoomMessage struct {
	ID        MessageID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID    RoomID    `gorm:"type:uuid;not null;index:ix_room_messages_room_created,priority:1" json:"roomId"`
	SenderID  UserID    `gorm:"type:uuid;not null" json:"senderId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:ix_room_messages_room_created,priority:2" json:"createdAt"`
}

func (RoomMessage) TableName() string { return "room_messages" }

func (m *RoomMessage) OwnerID() UserID { return m.SenderID }

func NewRoomMessage(roomID RoomID, sender UserID, content string) (*RoomMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, Invalid("Message cannot be empty")
	}
	if roomID == uuid.Nil || sender == uuid.Nil {
		return nil, Invalid("Message needs a room and a sender")
	}
	return &RoomMessage{ID: uuid.New(), RoomID: roomID, SenderID: sender, Content: content, CreatedAt: time.Now().UTC()}, nil
}

type RoomInput struct {
	Title     string `json:"title"`
	Topic     string `json:"topic"`
	IsPrivate bool   `json:"isPrivate"`
	Password  string `json:"password"`
}

// NewRoom validates the form. The password is not part of the returned room.
func NewRoom(creator UserID, in RoomInput) (*Room, error) {
	if creator == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	title, topic := strings.TrimSpace(in.Title), strings.TrimSpace(in.Topic)
	if title == "" {
		return nil, Invalid("Title is required")
	}
	if topic == "" {
		return nil, Invalid("Topic is required")
	}
	if in.IsPrivate && in.Password == "" {
		return nil, Invalid("Private rooms need a password")
	}
	now := time.Now().UTC()
	return &Room{
		ID:        uuid.New(),
		Title:     title,
		Topic:     topic,
		IsPrivate: in.IsPrivate,
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&Profile{}, &Post{}, &Application{},
		&Chat{}, &Message{},
		&Room{}, &RoomCredential{}, &RoomMember{}, &RoomMessage{},
		&League{},
	}
}
