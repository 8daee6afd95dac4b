package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func recv(t *testing.T, ch <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}, false
	}
}

func TestHubDeliversMatchingEventsOnly(t *testing.T) {
	h := NewHub()
	chatA, chatB := uuid.New(), uuid.New()

	sub, err := h.Subscribe(context.Background(), Filter{Table: TableMessages, ConversationID: chatA})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	h.Publish(Event{Table: TableMessages, Op: OpInsert, ConversationID: chatB, RowID: uuid.New()})
	h.Publish(Event{Table: TableRoomMessages, Op: OpInsert, ConversationID: chatA, RowID: uuid.New()})
	want := uuid.New()
	h.Publish(Event{Table: TableMessages, Op: OpInsert, ConversationID: chatA, RowID: want})

	ev, ok := recv(t, sub.Events())
	if !ok || ev.RowID != want {
		t.Fatalf("unexpected event %+v ok=%v", ev, ok)
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	chat := uuid.New()
	sub, _ := h.Subscribe(context.Background(), Filter{Table: TableMessages, ConversationID: chat})
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Event{Table: TableMessages, Op: OpInsert, ConversationID: chat})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCloseAndContextEndSubscription(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := h.Subscribe(ctx, Filter{Table: TableMessages, ConversationID: uuid.New()})

	cancel()
	if _, ok := recv(t, sub.Events()); ok {
		t.Fatal("expected closed channel after context cancel")
	}
	if sub.Err() != nil {
		t.Fatalf("expected nil error after local close, got %v", sub.Err())
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for h.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := h.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestDropReportsError(t *testing.T) {
	h := NewHub()
	sub, _ := h.Subscribe(context.Background(), Filter{Table: TableMessages, ConversationID: uuid.New()})

	h.Drop(ErrDisconnected)
	if _, ok := recv(t, sub.Events()); ok {
		t.Fatal("expected closed channel")
	}
	if !errors.Is(sub.Err(), ErrDisconnected) {
		t.Fatalf("expected disconnect error, got %v", sub.Err())
	}
}
