package store

import (
	"context"
	"errors"
	"time"

	"courtside/internal/credential"
	"courtside/internal/domain"
	"courtside/internal/feed"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoomStore struct {
	db     *gorm.DB
	hasher credential.Hasher
}

func (s *Store) Rooms() *RoomStore { return &RoomStore{db: s.DB, hasher: s.hasher} }

func (r *RoomStore) Get(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// List returns every room, most recently active first.
func (r *RoomStore) List(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&rooms).Error; err != nil {
		return nil, translate(err)
	}
	return rooms, nil
}

func (r *RoomStore) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// CreateRoom writes the room, its password credential when private, and the
// creator's membership in one transaction.
func (r *RoomStore) CreateRoom(ctx context.Context, creator uuid.UUID, in domain.RoomInput) (*domain.Room, error) {
	room, err := domain.NewRoom(creator, in)
	if err != nil {
		return nil, err
	}
	var cred *domain.RoomCredential
	if room.IsPrivate {
		h, err := r.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		cred = &domain.RoomCredential{
			RoomID:     room.ID,
			Algo:       h.Algo,
			Hash:       h.Hash,
			Salt:       h.Salt,
			ParamsJSON: h.ParamsJSON,
			Version:    h.Version,
			UpdatedAt:  room.CreatedAt,
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return translate(err)
		}
		if cred != nil {
			if err := tx.Create(cred).Error; err != nil {
				return translate(err)
			}
		}
		return addMember(tx, room.ID, creator)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// VerifyAndJoin checks password against the stored credential and records
// the membership on success. Public rooms accept any password. The result
// never exposes hash material.
func (r *RoomStore) VerifyAndJoin(ctx context.Context, roomID, userID uuid.UUID, password string) (bool, error) {
	var joined bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.First(&room, "id = ?", roomID).Error; err != nil {
			return translate(err)
		}
		if !room.IsPrivate {
			joined = true
			return addMember(tx, roomID, userID)
		}

		var cred domain.RoomCredential
		if err := tx.First(&cred, "room_id = ?", roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return translate(err)
		}
		rehash, ok := r.hasher.Verify(password, &cred)
		if !ok {
			return nil
		}
		if rehash {
			h, err := r.hasher.Hash(password)
			if err != nil {
				return err
			}
			err = tx.Model(&domain.RoomCredential{}).Where("room_id = ?", roomID).Updates(map[string]any{
				"algo":        h.Algo,
				"hash":        h.Hash,
				"salt":        h.Salt,
				"params_json": h.ParamsJSON,
				"version":     h.Version,
				"updated_at":  time.Now().UTC(),
			}).Error
			if err != nil {
				return translate(err)
			}
		}
		joined = true
		return addMember(tx, roomID, userID)
	})
	if err != nil {
		return false, err
	}
	return joined, nil
}

func addMember(tx *gorm.DB, roomID, userID uuid.UUID) error {
	return translate(tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.RoomMember{RoomID: roomID, UserID: userID, JoinedAt: time.Now().UTC()}).Error)
}

type RoomMessageStore struct {
	db        *gorm.DB
	publisher Publisher
}

func (s *Store) RoomMessages() *RoomMessageStore {
	return &RoomMessageStore{db: s.DB, publisher: s.publisher}
}

// visible restricts a room_messages query to rows viewer may read: any row
// of a public room, or rows of private rooms viewer is a member of.
func visible(q *gorm.DB, viewer uuid.UUID) *gorm.DB {
	return q.Joins("JOIN chat_rooms ON chat_rooms.id = room_messages.room_id").
		Where("chat_rooms.is_private = ? OR EXISTS (SELECT 1 FROM chat_room_members m WHERE m.room_id = room_messages.room_id AND m.user_id = ?)", false, viewer)
}

// List returns the room history oldest first. A private room viewer has not
// joined yields an empty list.
func (m *RoomMessageStore) List(ctx context.Context, roomID, viewer uuid.UUID) ([]domain.RoomMessage, error) {
	var msgs []domain.RoomMessage
	q := m.db.WithContext(ctx).Model(&domain.RoomMessage{}).
		Select("room_messages.*").
		Where("room_messages.room_id = ?", roomID)
	err := visible(q, viewer).
		Order("room_messages.created_at ASC, room_messages.id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err)
	}
	return msgs, nil
}

// Create inserts msg when the sender may post in the room and marks the room
// as recently active.
func (m *RoomMessageStore) Create(ctx context.Context, msg *domain.RoomMessage) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room domain.Room
		if err := tx.First(&room, "id = ?", msg.RoomID).Error; err != nil {
			return translate(err)
		}
		if room.IsPrivate {
			member, err := (&RoomStore{db: tx}).IsMember(ctx, room.ID, msg.SenderID)
			if err != nil {
				return err
			}
			if !member {
				return domain.ErrForbidden
			}
		}
		if err := tx.Create(msg).Error; err != nil {
			return translate(err)
		}
		return translate(tx.Model(&domain.Room{}).Where("id = ?", room.ID).
			UpdateColumn("updated_at", time.Now().UTC()).Error)
	})
	if err != nil {
		return err
	}
	if m.publisher != nil {
		m.publisher.Publish(feed.Event{Table: feed.TableRoomMessages, Op: feed.OpInsert, ConversationID: msg.RoomID, RowID: msg.ID})
	}
	return nil
}
