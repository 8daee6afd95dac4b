package service

import (
	"context"
	"errors"
	"log/slog"

	"courtside/internal/domain"
	"courtside/internal/observability/metrics"
	"courtside/internal/store"

	"github.com/google/uuid"
)

type RoomService struct {
	store  *store.Store
	logger *slog.Logger
}

type RoomMessageView struct {
	domain.RoomMessage
	AuthorNickname string `json:"authorNickname"`
}

func (s *RoomService) List(ctx context.Context) ([]domain.Room, error) {
	return s.store.Rooms().List(ctx)
}

func (s *RoomService) Get(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	return s.store.Rooms().Get(ctx, roomID)
}

// Create validates the form and runs the atomic create procedure. The
// creator becomes a member.
func (s *RoomService) Create(ctx context.Context, id domain.Identity, in domain.RoomInput) (*domain.Room, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	if _, err := domain.NewRoom(id.ID, in); err != nil {
		return nil, err
	}
	return s.store.Rooms().CreateRoom(ctx, id.ID, in)
}

func (s *RoomService) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	return s.store.Rooms().IsMember(ctx, roomID, userID)
}

// VerifyAndJoin hands the password to the store's verify-and-join procedure;
// it is never compared here.
func (s *RoomService) VerifyAndJoin(ctx context.Context, roomID, userID uuid.UUID, password string) (joined bool, err error) {
	defer func() {
		result := "joined"
		switch {
		case err != nil:
			result = "error"
		case !joined:
			result = "rejected"
		}
		metrics.RoomJoinsTotal.WithLabelValues(result).Inc()
	}()
	return s.store.Rooms().VerifyAndJoin(ctx, roomID, userID, password)
}

// Messages returns the room history with author names. Viewers without
// access to a private room get an empty history.
func (s *RoomService) Messages(ctx context.Context, id domain.Identity, roomID uuid.UUID) ([]RoomMessageView, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	msgs, err := s.store.RoomMessages().List(ctx, roomID, id.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		ids[i] = m.SenderID
	}
	profiles, err := s.store.Profiles().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]RoomMessageView, len(msgs))
	for i, m := range msgs {
		out[i] = RoomMessageView{RoomMessage: m, AuthorNickname: "User"}
		if p, ok := profiles[m.SenderID]; ok {
			out[i].AuthorNickname = displayName(&p, "")
		}
	}
	return out, nil
}

func (s *RoomService) Send(ctx context.Context, id domain.Identity, roomID uuid.UUID, content string) (*domain.RoomMessage, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	msg, err := domain.NewRoomMessage(roomID, id.ID, content)
	if err != nil {
		return nil, err
	}
	if err := s.store.RoomMessages().Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			s.logger.Info("blocked send to private room", "room_id", roomID, "user_id", id.ID)
		}
		return nil, err
	}
	return msg, nil
}
