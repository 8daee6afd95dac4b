// Package membership decides whether a viewer may read and post in a room.
package membership

import (
	"context"
	"errors"
	"strings"
	"sync"

	"courtside/internal/domain"

	"github.com/google/uuid"
)

type State int

const (
	Unknown State = iota
	PublicOK
	Member
	NeedPassword
)

func (s State) String() string {
	switch s {
	case PublicOK:
		return "public"
	case Member:
		return "member"
	case NeedPassword:
		return "need_password"
	default:
		return "unknown"
	}
}

var ErrNoRoom = errors.New("membership: room not resolved")

// Rooms is the server side of the gate. Passwords only ever travel through
// VerifyAndJoin.
type Rooms interface {
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	VerifyAndJoin(ctx context.Context, roomID, userID uuid.UUID, password string) (bool, error)
}

// Gate tracks one viewer's access to one room.
type Gate struct {
	rooms    Rooms
	identity domain.Identity

	mu    sync.Mutex
	room  *domain.Room
	state State
}

func New(rooms Rooms, identity domain.Identity) *Gate {
	return &Gate{rooms: rooms, identity: identity}
}

// Resolve moves the gate out of Unknown for room. Public rooms skip the
// membership lookup.
func (g *Gate) Resolve(ctx context.Context, room *domain.Room) (State, error) {
	if room == nil {
		return Unknown, ErrNoRoom
	}
	if !room.IsPrivate {
		g.set(room, PublicOK)
		return PublicOK, nil
	}
	if g.identity.IsZero() {
		g.set(room, NeedPassword)
		return NeedPassword, nil
	}
	ok, err := g.rooms.IsMember(ctx, room.ID, g.identity.ID)
	if err != nil {
		return Unknown, err
	}
	st := NeedPassword
	if ok {
		st = Member
	}
	g.set(room, st)
	return st, nil
}

// Join submits password for verification. It only applies in NeedPassword;
// in any other resolved state it is a no-op.
func (g *Gate) Join(ctx context.Context, password string) (State, error) {
	g.mu.Lock()
	room, st := g.room, g.state
	g.mu.Unlock()

	if room == nil {
		return Unknown, ErrNoRoom
	}
	if st != NeedPassword {
		return st, nil
	}
	if strings.TrimSpace(password) == "" {
		return NeedPassword, domain.Invalid("Please enter the room password")
	}
	if g.identity.IsZero() {
		return NeedPassword, domain.ErrUnauthenticated
	}
	ok, err := g.rooms.VerifyAndJoin(ctx, room.ID, g.identity.ID, password)
	if err != nil {
		return NeedPassword, err
	}
	if !ok {
		return NeedPassword, domain.ErrIncorrectPassword
	}
	g.set(room, Member)
	return Member, nil
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CanReadMessages reports whether history may be fetched and the room's
// live feed opened.
func (g *Gate) CanReadMessages() bool {
	st := g.State()
	return st == PublicOK || st == Member
}

func (g *Gate) set(room *domain.Room, st State) {
	g.mu.Lock()
	g.room, g.state = room, st
	g.mu.Unlock()
}
