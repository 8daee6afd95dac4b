// Package service implements the reads and writes behind every page. Each
// operation takes the acting identity explicitly; validation and ownership
// checks run before the store is touched.
package service

import (
	"io"
	"log/slog"

	"courtside/internal/domain"
	"courtside/internal/objectstore"
	"courtside/internal/store"
)

type Deps struct {
	Store       *store.Store
	Avatars     objectstore.Bucket
	Attachments objectstore.Bucket
	Logger      *slog.Logger
	// Async runs fire-and-forget work. Defaults to a new goroutine.
	Async func(func())
}

type Services struct {
	Posts        *PostService
	Applications *ApplicationService
	Chats        *ChatService
	Rooms        *RoomService
	Profiles     *ProfileService
	Leagues      *LeagueService
}

func New(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Async == nil {
		d.Async = func(f func()) { go f() }
	}
	return &Services{
		Posts:        &PostService{store: d.Store, bucket: d.Attachments, logger: d.Logger, async: d.Async},
		Applications: &ApplicationService{store: d.Store, logger: d.Logger},
		Chats:        &ChatService{store: d.Store, logger: d.Logger},
		Rooms:        &RoomService{store: d.Store, logger: d.Logger},
		Profiles:     &ProfileService{store: d.Store, bucket: d.Avatars, logger: d.Logger},
		Leagues:      &LeagueService{store: d.Store, logger: d.Logger},
	}
}

// Upload is a file received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func requireIdentity(id domain.Identity) error {
	if id.IsZero() {
		return domain.ErrUnauthenticated
	}
	return nil
}

// displayName picks what other users see for an author.
func displayName(p *domain.Profile, fallback string) string {
	if name := p.DisplayName(); name != "" {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return "User"
}
