package service

import (
	"context"
	"errors"
	"log/slog"

	"courtside/internal/domain"
	"courtside/internal/store"

	"github.com/google/uuid"
)

type ChatService struct {
	store  *store.Store
	logger *slog.Logger
}

type Peer struct {
	ID              uuid.UUID `json:"id"`
	Nickname        string    `json:"nickname"`
	ProfilePhotoURL *string   `json:"profilePhotoUrl"`
}

type ChatSummary struct {
	domain.Chat
	Peer        Peer            `json:"peer"`
	LastMessage *domain.Message `json:"lastMessage,omitempty"`
}

// Open returns the chat between id and other, creating it on first contact.
// Concurrent first contacts converge on one chat.
func (s *ChatService) Open(ctx context.Context, id domain.Identity, other uuid.UUID) (*domain.Chat, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	chat, err := domain.NewChat(id.ID, other)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Profiles().Get(ctx, other); err != nil {
		return nil, err
	}

	existing, err := s.store.Chats().FindByPair(ctx, chat.ParticipantLowID, chat.ParticipantHighID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	err = s.store.Chats().Create(ctx, chat)
	if errors.Is(err, domain.ErrAlreadyExists) {
		s.logger.Debug("chat created concurrently, using existing row", "low", chat.ParticipantLowID, "high", chat.ParticipantHighID)
		return s.store.Chats().FindByPair(ctx, chat.ParticipantLowID, chat.ParticipantHighID)
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// List returns id's chats, most recently active first, each with its peer
// and last message. Profiles and last messages are fetched in one batch each.
func (s *ChatService) List(ctx context.Context, id domain.Identity) ([]ChatSummary, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	chats, err := s.store.Chats().ListForUser(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	chatIDs := make([]uuid.UUID, len(chats))
	peerIDs := make([]uuid.UUID, len(chats))
	for i, c := range chats {
		chatIDs[i] = c.ID
		peerIDs[i] = c.Peer(id.ID)
	}
	profiles, err := s.store.Profiles().GetMany(ctx, peerIDs)
	if err != nil {
		return nil, err
	}
	last, err := s.store.Chats().LastMessages(ctx, chatIDs)
	if err != nil {
		return nil, err
	}

	out := make([]ChatSummary, len(chats))
	for i, c := range chats {
		out[i] = ChatSummary{Chat: c, Peer: peerOf(profiles, c.Peer(id.ID))}
		if m, ok := last[c.ID]; ok {
			out[i].LastMessage = &m
		}
	}
	return out, nil
}

// Get returns the chat with its peer. Non-participants get domain.ErrNotFound.
func (s *ChatService) Get(ctx context.Context, id domain.Identity, chatID uuid.UUID) (*ChatSummary, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	chat, err := s.store.Chats().Get(ctx, chatID, id.ID)
	if err != nil {
		return nil, err
	}
	peerID := chat.Peer(id.ID)
	profiles, err := s.store.Profiles().GetMany(ctx, []uuid.UUID{peerID})
	if err != nil {
		return nil, err
	}
	return &ChatSummary{Chat: *chat, Peer: peerOf(profiles, peerID)}, nil
}

func (s *ChatService) Messages(ctx context.Context, id domain.Identity, chatID uuid.UUID) ([]domain.Message, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	return s.store.Messages().List(ctx, chatID, id.ID)
}

func (s *ChatService) Send(ctx context.Context, id domain.Identity, chatID uuid.UUID, content string) (*domain.Message, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	msg, err := domain.NewMessage(chatID, id.ID, content)
	if err != nil {
		return nil, err
	}
	if err := s.store.Messages().Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func peerOf(profiles map[uuid.UUID]domain.Profile, id uuid.UUID) Peer {
	p := Peer{ID: id, Nickname: "User"}
	if prof, ok := profiles[id]; ok {
		p.Nickname = displayName(&prof, "")
		p.ProfilePhotoURL = prof.ProfilePhotoURL
	}
	return p
}
