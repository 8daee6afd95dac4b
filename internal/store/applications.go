package store

import (
	"context"
	"errors"

	"courtside/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApplicationStore struct{ db *gorm.DB }

func (s *Store) Applications() *ApplicationStore { return &ApplicationStore{db: s.DB} }

// Create fails with domain.ErrAlreadyExists when the user already applied.
func (a *ApplicationStore) Create(ctx context.Context, app *domain.Application) error {
	return translate(a.db.WithContext(ctx).Create(app).Error)
}

func (a *ApplicationStore) Get(ctx context.Context, postID, userID uuid.UUID) (*domain.Application, error) {
	var app domain.Application
	if err := a.db.WithContext(ctx).First(&app, "post_id = ? AND user_id = ?", postID, userID).Error; err != nil {
		return nil, translate(err)
	}
	return &app, nil
}

// Delete reports whether an application was removed.
func (a *ApplicationStore) Delete(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	res := a.db.WithContext(ctx).Where("post_id = ? AND user_id = ?", postID, userID).Delete(&domain.Application{})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (a *ApplicationStore) Exists(ctx context.Context, postID, userID uuid.UUID) (bool, error) {
	_, err := a.Get(ctx, postID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListForPost returns applications in the order they were made.
func (a *ApplicationStore) ListForPost(ctx context.Context, postID uuid.UUID) ([]domain.Application, error) {
	var apps []domain.Application
	err := a.db.WithContext(ctx).Where("post_id = ?", postID).Order("created_at ASC").Find(&apps).Error
	if err != nil {
		return nil, translate(err)
	}
	return apps, nil
}

func (a *ApplicationStore) Count(ctx context.Context, postID uuid.UUID) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&domain.Application{}).Where("post_id = ?", postID).Count(&n).Error
	return n, translate(err)
}
