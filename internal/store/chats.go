package store

import (
	"context"
	"time"

	"courtside/internal/domain"
	"courtside/internal/feed"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatStore struct{ db *gorm.DB }

func (s *Store) Chats() *ChatStore { return &ChatStore{db: s.DB} }

// Get returns the chat only when viewer participates in it. Everyone else
// gets domain.ErrNotFound.
func (c *ChatStore) Get(ctx context.Context, id, viewer uuid.UUID) (*domain.Chat, error) {
	var chat domain.Chat
	err := c.db.WithContext(ctx).
		Where("id = ? AND (participant_low_id = ? OR participant_high_id = ?)", id, viewer, viewer).
		First(&chat).Error
	if err != nil {
		return nil, translate(err)
	}
	return &chat, nil
}

func (c *ChatStore) FindByPair(ctx context.Context, low, high uuid.UUID) (*domain.Chat, error) {
	var chat domain.Chat
	err := c.db.WithContext(ctx).
		Where("participant_low_id = ? AND participant_high_id = ?", low, high).
		First(&chat).Error
	if err != nil {
		return nil, translate(err)
	}
	return &chat, nil
}

// Create fails with domain.ErrAlreadyExists when the pair already has a chat.
func (c *ChatStore) Create(ctx context.Context, chat *domain.Chat) error {
	return translate(c.db.WithContext(ctx).Create(chat).Error)
}

func (c *ChatStore) ListForUser(ctx context.Context, user uuid.UUID) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := c.db.WithContext(ctx).
		Where("participant_low_id = ? OR participant_high_id = ?", user, user).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, translate(err)
	}
	return chats, nil
}

// LastMessages returns the newest message of each listed chat using one
// query for the whole batch.
func (c *ChatStore) LastMessages(ctx context.Context, chatIDs []uuid.UUID) (map[uuid.UUID]domain.Message, error) {
	out := make(map[uuid.UUID]domain.Message, len(chatIDs))
	ids := dedupe(chatIDs)
	if len(ids) == 0 {
		return out, nil
	}

	db := c.db.WithContext(ctx)
	latest := db.Model(&domain.Message{}).
		Select("chat_id, MAX(created_at) AS created_at").
		Where("chat_id IN ?", ids).
		Group("chat_id")

	var rows []domain.Message
	err := db.Table("messages AS m").
		Select("m.*").
		Joins("JOIN (?) AS latest ON latest.chat_id = m.chat_id AND latest.created_at = m.created_at", latest).
		Order("m.created_at DESC, m.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for _, m := range rows {
		if _, ok := out[m.ChatID]; !ok {
			out[m.ChatID] = m
		}
	}
	return out, nil
}

type MessageStore struct {
	db        *gorm.DB
	publisher Publisher
}

func (s *Store) Messages() *MessageStore { return &MessageStore{db: s.DB, publisher: s.publisher} }

// List returns the chat history oldest first, or domain.ErrNotFound when
// viewer is not a participant.
func (m *MessageStore) List(ctx context.Context, chatID, viewer uuid.UUID) ([]domain.Message, error) {
	if _, err := (&ChatStore{db: m.db}).Get(ctx, chatID, viewer); err != nil {
		return nil, err
	}
	var msgs []domain.Message
	err := m.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err)
	}
	return msgs, nil
}

// Create inserts msg when its sender participates in the chat and bumps the
// chat so it sorts first in the inbox.
func (m *MessageStore) Create(ctx context.Context, msg *domain.Message) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := (&ChatStore{db: tx}).Get(ctx, msg.ChatID, msg.SenderID); err != nil {
			return err
		}
		if err := tx.Create(msg).Error; err != nil {
			return translate(err)
		}
		return translate(tx.Model(&domain.Chat{}).Where("id = ?", msg.ChatID).
			UpdateColumn("updated_at", time.Now().UTC()).Error)
	})
	if err != nil {
		return err
	}
	if m.publisher != nil {
		m.publisher.Publish(feed.Event{Table: feed.TableMessages, Op: feed.OpInsert, ConversationID: msg.ChatID, RowID: msg.ID})
	}
	return nil
}
