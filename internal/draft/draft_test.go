package draft_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"courtside/internal/domain"
	"courtside/internal/draft"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGormStore(t *testing.T) *draft.GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gs := draft.NewGormStore(db)
	if err := gs.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gs
}

func stores(t *testing.T) map[string]draft.Store {
	return map[string]draft.Store{
		"memory": draft.NewMemoryStore(),
		"gorm":   newGormStore(t),
	}
}

func newReconciler(s draft.Store) *draft.Reconciler[domain.PostInput] {
	return draft.NewReconciler(s, domain.PostInput.IsEmpty, nil)
}

func TestReconcilerPrecedence(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newReconciler(s)
			owner := uuid.New()
			key := draft.EditPostKey(uuid.New())
			server := domain.PostInput{Title: "Server title", Content: "Server body"}

			form, src, err := r.Load(ctx, owner, key, &server)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if src != draft.FromServer || form.Title != "Server title" {
				t.Fatalf("expected server values, got %s %+v", src, form)
			}

			edited := domain.PostInput{Title: "Draft title", Content: "Server body"}
			if err := r.Save(ctx, owner, key, edited); err != nil {
				t.Fatalf("save: %v", err)
			}
			form, src, err = r.Load(ctx, owner, key, &server)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if src != draft.FromDraft || form.Title != "Draft title" {
				t.Fatalf("expected draft values, got %s %+v", src, form)
			}

			if err := r.Cancelled(ctx, owner, key); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if _, src, _ = r.Load(ctx, owner, key, &server); src != draft.FromDraft {
				t.Fatalf("cancel should keep the draft, got %s", src)
			}

			if err := r.Submitted(ctx, owner, key); err != nil {
				t.Fatalf("submitted: %v", err)
			}
			if _, src, _ = r.Load(ctx, owner, key, &server); src != draft.FromServer {
				t.Fatalf("submit should clear the draft, got %s", src)
			}
		})
	}
}

func TestReconcilerSkipsEmptyForm(t *testing.T) {
	ctx := context.Background()
	s := draft.NewMemoryStore()
	r := newReconciler(s)
	owner := uuid.New()

	if err := r.Save(ctx, owner, draft.NewPostKey, domain.PostInput{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, _ := s.Get(ctx, owner, draft.NewPostKey); ok {
		t.Fatalf("empty form should not be stored")
	}
	_, src, err := r.Load(ctx, owner, draft.NewPostKey, nil)
	if err != nil || src != draft.Blank {
		t.Fatalf("expected blank form, got %s err=%v", src, err)
	}
}

func TestReconcilerDropsCorruptDraft(t *testing.T) {
	ctx := context.Background()
	s := draft.NewMemoryStore()
	r := newReconciler(s)
	owner := uuid.New()
	_ = s.Put(ctx, owner, draft.NewPostKey, []byte("{not json"))

	_, src, err := r.Load(ctx, owner, draft.NewPostKey, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if src != draft.Blank {
		t.Fatalf("expected blank after corrupt draft, got %s", src)
	}
	if _, ok, _ := s.Get(ctx, owner, draft.NewPostKey); ok {
		t.Fatalf("corrupt draft should be removed")
	}
}

func TestDraftsAreScopedPerOwner(t *testing.T) {
	ctx := context.Background()
	r := newReconciler(newGormStore(t))
	alice, bob := uuid.New(), uuid.New()

	if err := r.Save(ctx, alice, draft.NewPostKey, domain.PostInput{Title: "Alice"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, src, _ := r.Load(ctx, bob, draft.NewPostKey, nil); src != draft.Blank {
		t.Fatalf("bob should not see alice's draft, got %s", src)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	gs := newGormStore(t)
	owner := uuid.New()
	if err := gs.Put(ctx, owner, draft.NewPostKey, []byte(`{"title":"x"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	n, err := gs.PurgeOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("fresh draft purged: n=%d err=%v", n, err)
	}
	n, err = gs.PurgeOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one purge, got n=%d err=%v", n, err)
	}
}
