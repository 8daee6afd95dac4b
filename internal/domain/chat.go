package domain

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chat is a direct conversation between exactly two users. The pair is kept
// in canonical order so each unordered pair maps to one row.
type Chat struct {
	ID                ChatID    `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantLowID  UserID    `gorm:"type:uuid;not null;uniqueIndex:ux_chats_pair,priority:1;check:chk_chats_pair_order,participant_low_id < participant_high_id" json:"participantLowId"`
	ParticipantHighID UserID    `gorm:"type:uuid;not null;uniqueIndex:ux_chats_pair,priority:2;index" json:"participantHighId"`
	CreatedAt         time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"not null;index" json:"updatedAt"`
}

func (Chat) TableName() string { return "chats" }

func (c *Chat) Has(u UserID) bool {
	return c.ParticipantLowID == u || c.ParticipantHighID == u
}

// Peer returns the other participant as seen by u.
func (c *Chat) Peer(u UserID) UserID {
	if c.ParticipantLowID == u {
		return c.ParticipantHighID
	}
	return c.ParticipantLowID
}

// CanonicalPair orders two distinct users by their byte representation.
func CanonicalPair(a, b UserID) (low, high UserID, err error) {
	if a == uuid.Nil || b == uuid.Nil {
		return uuid.Nil, uuid.Nil, Invalid("Both participants are required")
	}
	switch c := bytes.Compare(a[:], b[:]); {
	case c == 0:
		return uuid.Nil, uuid.Nil, Invalid("You cannot start a chat with yourself")
	case c < 0:
		return a, b, nil
	default:
		return b, a, nil
	}
}

func NewChat(a, b UserID) (*Chat, error) {
	low, high, err := CanonicalPair(a, b)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Chat{ID: uuid.New(), ParticipantLowID: low, ParticipantHighID: high, CreatedAt: now, UpdatedAt: now}, nil
}

type Message struct {
	ID        MessageID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID    ChatID    `gorm:"type:uuid;not null;index:ix_messages_chat_created,priority:1" json:"chatId"`
	SenderID  UserID    `gorm:"type:uuid;not null" json:"senderId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:ix_messages_chat_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) OwnerID() UserID { return m.SenderID }

func NewMessage(chatID ChatID, sender UserID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, Invalid("Message cannot be empty")
	}
	if chatID == uuid.Nil || sender == uuid.Nil {
		return nil, Invalid("Message needs a chat and a sender")
	}
	return &Message{ID: uuid.New(), ChatID: chatID, SenderID: sender, Content: content, CreatedAt: time.Now().UTC()}, nil
}
