package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"courtside/internal/domain"
	"courtside/internal/objectstore"
	"courtside/internal/observability/metrics"
	"courtside/internal/store"

	"github.com/google/uuid"
)

const MaxAvatarBytes = 5 << 20

type ProfileService struct {
	store  *store.Store
	bucket objectstore.Bucket
	logger *slog.Logger
}

func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return s.store.Profiles().Get(ctx, userID)
}

// Ensure inserts a profile for a fresh account unless one exists already,
// e.g. created by the auth service's own hook.
func (s *ProfileService) Ensure(ctx context.Context, id domain.Identity, nickname string) (*domain.Profile, error) {
	prof, err := domain.NewProfile(id, nickname)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Profiles().Create(ctx, prof); err != nil {
		return nil, err
	}
	return s.store.Profiles().Get(ctx, id.ID)
}

func (s *ProfileService) Update(ctx context.Context, id domain.Identity, in domain.ProfileInput) (*domain.Profile, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	cols, err := in.Columns()
	if err != nil {
		return nil, err
	}
	return s.store.Profiles().Update(ctx, id.ID, cols)
}

// UploadAvatar stores a new profile photo and points the profile at it. The
// previous photo is removed afterwards on a best-effort basis.
func (s *ProfileService) UploadAvatar(ctx context.Context, id domain.Identity, up Upload) (prof *domain.Profile, err error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(up.ContentType, "image/") {
		return nil, domain.Invalid("Please choose an image file")
	}
	if up.Size > MaxAvatarBytes {
		return nil, domain.Invalid("Image must be 5MB or smaller")
	}
	defer func() { metrics.UploadsTotal.WithLabelValues("avatar", metrics.Result(err)).Inc() }()

	current, err := s.Ensure(ctx, id, "")
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("profile-photos/%s-%d%s", id.ID, time.Now().UnixMilli(), extension(up))
	url, err := s.bucket.Put(ctx, key, io.LimitReader(up.Body, MaxAvatarBytes), up.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	if err := s.store.Profiles().SetPhotoURL(ctx, id.ID, &url); err != nil {
		if rmErr := s.bucket.Remove(ctx, key); rmErr != nil {
			s.logger.Warn("orphaned avatar upload", "key", key, "error", rmErr)
		}
		return nil, err
	}

	if current.ProfilePhotoURL != nil {
		if old, ok := s.bucket.KeyFromURL(*current.ProfilePhotoURL); ok {
			if err := s.bucket.Remove(ctx, old); err != nil {
				s.logger.Warn("old avatar cleanup failed", "key", old, "error", err)
			}
		}
	}
	return s.store.Profiles().Get(ctx, id.ID)
}

func extension(up Upload) string {
	if ext := strings.ToLower(filepath.Ext(up.Filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(up.ContentType); len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}
