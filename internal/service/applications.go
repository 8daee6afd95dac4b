package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"courtside/internal/authz"
	"courtside/internal/domain"
	"courtside/internal/store"

	"github.com/google/uuid"
)

type ApplicationService struct {
	store  *store.Store
	logger *slog.Logger
}

// Apply records that id wants to join the post's event. Applying twice
// returns the existing application.
func (s *ApplicationService) Apply(ctx context.Context, id domain.Identity, postID uuid.UUID) (*domain.Application, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	if _, err := s.store.Posts().Get(ctx, postID); err != nil {
		return nil, err
	}
	app := &domain.Application{PostID: postID, UserID: id.ID, CreatedAt: time.Now().UTC()}
	err := s.store.Applications().Create(ctx, app)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return s.store.Applications().Get(ctx, postID, id.ID)
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *ApplicationService) Withdraw(ctx context.Context, id domain.Identity, postID uuid.UUID) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	_, err := s.store.Applications().Delete(ctx, postID, id.ID)
	return err
}

// Toggle applies when id has not applied yet and withdraws otherwise. It
// reports the resulting state.
func (s *ApplicationService) Toggle(ctx context.Context, id domain.Identity, postID uuid.UUID) (bool, error) {
	applied, err := s.HasApplied(ctx, id, postID)
	if err != nil {
		return false, err
	}
	if applied {
		return false, s.Withdraw(ctx, id, postID)
	}
	if _, err := s.Apply(ctx, id, postID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ApplicationService) HasApplied(ctx context.Context, id domain.Identity, postID uuid.UUID) (bool, error) {
	if err := requireIdentity(id); err != nil {
		return false, err
	}
	return s.store.Applications().Exists(ctx, postID, id.ID)
}

type Applicant struct {
	UserID          uuid.UUID `json:"userId"`
	AppliedAt       time.Time `json:"appliedAt"`
	Nickname        string    `json:"nickname"`
	ProfilePhotoURL *string   `json:"profilePhotoUrl"`
	VolleyballLevel *string   `json:"volleyballLevel"`
}

// Applicants lists who applied, in application order. Only the post's
// author may see it.
func (s *ApplicationService) Applicants(ctx context.Context, id domain.Identity, postID uuid.UUID) ([]Applicant, error) {
	post, err := s.store.Posts().Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckOwner(id, post); err != nil {
		return nil, err
	}
	apps, err := s.store.Applications().ListForPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(apps))
	for i, a := range apps {
		ids[i] = a.UserID
	}
	profiles, err := s.store.Profiles().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Applicant, len(apps))
	for i, a := range apps {
		out[i] = Applicant{UserID: a.UserID, AppliedAt: a.CreatedAt, Nickname: "User"}
		if p, ok := profiles[a.UserID]; ok {
			out[i].Nickname = displayName(&p, "")
			out[i].ProfilePhotoURL = p.ProfilePhotoURL
			out[i].VolleyballLevel = p.VolleyballLevel
		}
	}
	return out, nil
}
