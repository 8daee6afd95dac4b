package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"courtside/internal/feed"
	"courtside/internal/observability/logging"

	"github.com/google/uuid"
)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newSync(hub *feed.Hub) *Synchronizer {
	return New(hub, Options{BackoffInitial: 5 * time.Millisecond, BackoffMax: 20 * time.Millisecond, Logger: logging.Discard()})
}

func insert(hub *feed.Hub, table string, conv uuid.UUID) {
	hub.Publish(feed.Event{Table: table, Op: feed.OpInsert, ConversationID: conv, RowID: uuid.New()})
}

func TestEventsTriggerRefetch(t *testing.T) {
	hub := feed.NewHub()
	s := newSync(hub)
	defer s.Close()
	chat := uuid.New()

	var calls atomic.Int32
	_, err := s.Open(context.Background(), "chat:"+chat.String(), feed.Filter{Table: feed.TableMessages, ConversationID: chat}, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	insert(hub, feed.TableMessages, uuid.New()) // other chat
	insert(hub, feed.TableMessages, chat)
	eventually(t, func() bool { return calls.Load() >= 1 }, "no refetch after matching insert")
}

func TestBurstsCoalesce(t *testing.T) {
	hub := feed.NewHub()
	s := newSync(hub)
	defer s.Close()
	chat := uuid.New()

	release := make(chan struct{})
	var calls atomic.Int32
	_, _ = s.Open(context.Background(), "k", feed.Filter{Table: feed.TableMessages, ConversationID: chat}, func(context.Context) {
		if calls.Add(1) == 1 {
			<-release
		}
	})

	insert(hub, feed.TableMessages, chat)
	eventually(t, func() bool { return calls.Load() == 1 }, "first refetch never started")
	for i := 0; i < 20; i++ {
		insert(hub, feed.TableMessages, chat)
	}
	close(release)

	eventually(t, func() bool { return calls.Load() >= 2 }, "pending refetch never ran")
	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n > 3 {
		t.Fatalf("burst of 20 events caused %d refetches", n)
	}
}

func TestReopenWithNewKeyClosesPrevious(t *testing.T) {
	hub := feed.NewHub()
	s := newSync(hub)
	defer s.Close()
	a, b := uuid.New(), uuid.New()

	var aCalls atomic.Int32
	if _, err := s.Open(context.Background(), "a", feed.Filter{Table: feed.TableMessages, ConversationID: a}, func(context.Context) { aCalls.Add(1) }); err != nil {
		t.Fatalf("open a: %v", err)
	}
	if _, err := s.Open(context.Background(), "b", feed.Filter{Table: feed.TableMessages, ConversationID: b}, func(context.Context) {}); err != nil {
		t.Fatalf("open b: %v", err)
	}
	if n := hub.Subscribers(); n != 1 {
		t.Fatalf("expected exactly one live subscription, got %d", n)
	}
	insert(hub, feed.TableMessages, a)
	time.Sleep(30 * time.Millisecond)
	if aCalls.Load() != 0 {
		t.Fatal("closed subscription still refetching")
	}
}

func TestReopenSameKeyUsesLatestCallback(t *testing.T) {
	hub := feed.NewHub()
	s := newSync(hub)
	defer s.Close()
	chat := uuid.New()
	filter := feed.Filter{Table: feed.TableMessages, ConversationID: chat}

	var firstCalls, secondCalls atomic.Int32
	first, err := s.Open(context.Background(), "chat", filter, func(context.Context) { firstCalls.Add(1) })
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	second, err := s.Open(context.Background(), "chat", filter, func(context.Context) { secondCalls.Add(1) })
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if first == second {
		t.Fatal("reopening must replace the subscription")
	}
	if n := hub.Subscribers(); n != 1 {
		t.Fatalf("expected exactly one live subscription, got %d", n)
	}

	// The replaced owner closing its handle must not tear down the new one.
	first.Close()
	insert(hub, feed.TableMessages, chat)
	eventually(t, func() bool { return secondCalls.Load() == 1 }, "latest callback never ran")
	if firstCalls.Load() != 0 {
		t.Fatal("replaced callback still running")
	}
	if n := hub.Subscribers(); n != 1 {
		t.Fatalf("closing the replaced handle dropped the live one: %d", n)
	}
}

func TestReconnectRefetchesOnce(t *testing.T) {
	hub := feed.NewHub()
	s := newSync(hub)
	defer s.Close()
	room := uuid.New()

	var calls atomic.Int32
	_, _ = s.Open(context.Background(), "room", feed.Filter{Table: feed.TableRoomMessages, ConversationID: room}, func(context.Context) { calls.Add(1) })

	hub.Drop(feed.ErrDisconnected)
	eventually(t, func() bool { return calls.Load() == 1 && hub.Subscribers() == 1 }, "no resubscribe and catch-up refetch after drop")

	insert(hub, feed.TableRoomMessages, room)
	eventually(t, func() bool { return calls.Load() == 2 }, "events after reconnect not delivered")
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	hub := feed.NewHub()
	s := newSync(hub)
	chat := uuid.New()

	var calls atomic.Int32
	sub, _ := s.Open(context.Background(), "k", feed.Filter{Table: feed.TableMessages, ConversationID: chat}, func(context.Context) { calls.Add(1) })
	sub.Close()
	sub.Close()
	s.Close()

	insert(hub, feed.TableMessages, chat)
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("onChange ran after Close")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("feed subscription leaked")
	}
}

func TestRefetchRunsOnWorker(t *testing.T) {
	hub := feed.NewHub()
	s := New(hub, Options{Logger: logging.Discard()})
	defer s.Close()

	var calls atomic.Int32
	sub, err := s.Open(context.Background(), "k", feed.Filter{Table: feed.TableMessages, ConversationID: uuid.New()}, func(context.Context) { calls.Add(1) })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sub.Refetch()
	eventually(t, func() bool { return calls.Load() == 1 }, "explicit refetch never ran")
}
