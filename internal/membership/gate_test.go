package membership_test

import (
	"context"
	"errors"
	"testing"

	"courtside/internal/domain"
	"courtside/internal/membership"

	"github.com/google/uuid"
)

type stubRooms struct {
	members  map[uuid.UUID]bool
	password string
	verifies int
}

func (s *stubRooms) IsMember(_ context.Context, _, userID uuid.UUID) (bool, error) {
	return s.members[userID], nil
}

func (s *stubRooms) VerifyAndJoin(_ context.Context, _, userID uuid.UUID, password string) (bool, error) {
	s.verifies++
	if password != s.password {
		return false, nil
	}
	s.members[userID] = true
	return true, nil
}

func newRooms() *stubRooms {
	return &stubRooms{members: map[uuid.UUID]bool{}, password: "spike"}
}

func viewer() domain.Identity { return domain.Identity{ID: uuid.New(), Email: "v@example.com"} }

func TestPublicRoomNeedsNoMembership(t *testing.T) {
	g := membership.New(newRooms(), viewer())
	if g.CanReadMessages() {
		t.Fatalf("unknown state must not allow reads")
	}
	st, err := g.Resolve(context.Background(), &domain.Room{ID: uuid.New(), IsPrivate: false})
	if err != nil || st != membership.PublicOK {
		t.Fatalf("expected public, got %v err=%v", st, err)
	}
	if !g.CanReadMessages() {
		t.Fatalf("public room should be readable")
	}
}

func TestPrivateRoomPasswordFlow(t *testing.T) {
	ctx := context.Background()
	rooms := newRooms()
	g := membership.New(rooms, viewer())
	room := &domain.Room{ID: uuid.New(), IsPrivate: true}

	st, err := g.Resolve(ctx, room)
	if err != nil || st != membership.NeedPassword {
		t.Fatalf("expected need password, got %v err=%v", st, err)
	}
	if g.CanReadMessages() {
		t.Fatalf("messages must stay hidden before joining")
	}

	if _, err := g.Join(ctx, "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank password, got %v", err)
	}
	if rooms.verifies != 0 {
		t.Fatalf("blank password must not reach the server")
	}

	st, err = g.Join(ctx, "wrong")
	if !errors.Is(err, domain.ErrIncorrectPassword) || st != membership.NeedPassword {
		t.Fatalf("expected incorrect password, got %v err=%v", st, err)
	}

	st, err = g.Join(ctx, "spike")
	if err != nil || st != membership.Member {
		t.Fatalf("expected member, got %v err=%v", st, err)
	}
	if !g.CanReadMessages() {
		t.Fatalf("member should read messages")
	}

	again := membership.New(rooms, domain.Identity{ID: firstMember(rooms)})
	if st, _ := again.Resolve(ctx, room); st != membership.Member {
		t.Fatalf("membership should persist, got %v", st)
	}
}

func TestJoinBeforeResolve(t *testing.T) {
	g := membership.New(newRooms(), viewer())
	if _, err := g.Join(context.Background(), "spike"); !errors.Is(err, membership.ErrNoRoom) {
		t.Fatalf("expected ErrNoRoom, got %v", err)
	}
}

func firstMember(s *stubRooms) uuid.UUID {
	for id := range s.members {
		return id
	}
	return uuid.Nil
}
