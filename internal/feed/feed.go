// Package feed delivers row-insert notifications for conversation tables.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

const (
	TableMessages     = "messages"
	TableRoomMessages = "room_messages"

	OpInsert = "INSERT"
)

var (
	ErrClosed       = errors.New("feed closed")
	ErrDisconnected = errors.New("feed disconnected")
)

type Event struct {
	Table          string    `json:"table"`
	Op             string    `json:"op"`
	ConversationID uuid.UUID `json:"conversationId"`
	RowID          uuid.UUID `json:"rowId"`
}

// Filter selects insert events of one table for one conversation.
type Filter struct {
	Table          string
	ConversationID uuid.UUID
}

func (f Filter) Matches(ev Event) bool {
	return ev.Op == OpInsert && ev.Table == f.Table && ev.ConversationID == f.ConversationID
}

// Subscription is a live stream of matching events. Events is closed when
// the subscription ends; Err then reports why (nil after Close).
type Subscription interface {
	Events() <-chan Event
	Err() error
	Close() error
}

type Feed interface {
	Subscribe(ctx context.Context, f Filter) (Subscription, error)
}

type subscription struct {
	filter  Filter
	events  chan Event
	onClose func(*subscription)
	stop    func() bool

	mu    sync.Mutex
	ended bool
	err   error
}

func newSubscription(f Filter, onClose func(*subscription)) *subscription {
	// One slot is enough: a pending event already means "something changed".
	return &subscription{filter: f, events: make(chan Event, 1), onClose: onClose}
}

func (s *subscription) Events() <-chan Event { return s.events }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *subscription) end(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	s.err = err
	close(s.events)
	return true
}

// Close detaches from the feed before closing Events, so a reader that sees
// the channel closed can rely on the feed no longer holding it.
func (s *subscription) Close() error {
	s.mu.Lock()
	ended, stop := s.ended, s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if ended {
		return nil
	}
	if s.onClose != nil {
		s.onClose(s)
	}
	s.end(nil)
	return nil
}

// bind ends the subscription when ctx is done.
func (s *subscription) bind(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
}
