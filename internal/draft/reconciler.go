package draft

import (
	"context"
	"encoding/json"
	"log/slog"

	"courtside/internal/observability/metrics"

	"github.com/google/uuid"
)

// Source tells where a loaded form came from.
type Source string

const (
	FromDraft  Source = "draft"
	FromServer Source = "server"
	Blank      Source = "blank"
)

// Reconciler decides what a form shows and when its draft is written or
// discarded. T is the form payload.
type Reconciler[T any] struct {
	store   Store
	isEmpty func(T) bool
	logger  *slog.Logger
}

func NewReconciler[T any](store Store, isEmpty func(T) bool, logger *slog.Logger) *Reconciler[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler[T]{store: store, isEmpty: isEmpty, logger: logger}
}

// Load returns the stored draft when one exists, otherwise the server
// values, otherwise the zero form. A draft that no longer decodes is
// dropped.
func (r *Reconciler[T]) Load(ctx context.Context, owner uuid.UUID, key string, server *T) (T, Source, error) {
	var zero T
	payload, ok, err := r.store.Get(ctx, owner, key)
	if err != nil {
		return zero, "", err
	}
	if ok {
		var form T
		if err := json.Unmarshal(payload, &form); err == nil {
			return form, FromDraft, nil
		}
		r.logger.Warn("discarding unreadable draft", "key", key, "error", err)
		if err := r.store.Delete(ctx, owner, key); err != nil {
			return zero, "", err
		}
	}
	if server != nil {
		return *server, FromServer, nil
	}
	return zero, Blank, nil
}

// Save overwrites the draft with the whole form. An empty form is not
// written, so opening a page never creates a draft.
func (r *Reconciler[T]) Save(ctx context.Context, owner uuid.UUID, key string, form T) error {
	if r.isEmpty != nil && r.isEmpty(form) {
		metrics.DraftsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	payload, err := json.Marshal(form)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, owner, key, payload); err != nil {
		return err
	}
	metrics.DraftsTotal.WithLabelValues("saved").Inc()
	return nil
}

// Submitted discards the draft after the record was written successfully.
func (r *Reconciler[T]) Submitted(ctx context.Context, owner uuid.UUID, key string) error {
	if err := r.store.Delete(ctx, owner, key); err != nil {
		return err
	}
	metrics.DraftsTotal.WithLabelValues("cleared").Inc()
	return nil
}

// Cancelled leaves the draft in place so the user can pick it up later.
func (r *Reconciler[T]) Cancelled(context.Context, uuid.UUID, string) error { return nil }
