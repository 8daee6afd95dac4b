package store

import (
	"context"
	"time"

	"courtside/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostStore struct{ db *gorm.DB }

func (s *Store) Posts() *PostStore { return &PostStore{db: s.DB} }

func (p *PostStore) Get(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	var post domain.Post
	if err := p.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

// ListRecent returns posts newest first. limit <= 0 means no limit.
func (p *PostStore) ListRecent(ctx context.Context, limit int) ([]domain.Post, error) {
	q := p.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var posts []domain.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, translate(err)
	}
	return posts, nil
}

// ListForDate returns the posts scheduled on date (YYYY-MM-DD), earliest
// start time first and untimed posts last.
func (p *PostStore) ListForDate(ctx context.Context, date string) ([]domain.Post, error) {
	var posts []domain.Post
	err := p.db.WithContext(ctx).
		Where("event_date = ?", date).
		Order("CASE WHEN event_time IS NULL THEN 1 ELSE 0 END, event_time ASC, created_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, translate(err)
	}
	return posts, nil
}

// ListWithCoordinates returns posts that can be placed on the map.
func (p *PostStore) ListWithCoordinates(ctx context.Context) ([]domain.Post, error) {
	var posts []domain.Post
	err := p.db.WithContext(ctx).
		Where("location IS NOT NULL AND location_lat IS NOT NULL AND location_lng IS NOT NULL").
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, translate(err)
	}
	return posts, nil
}

func (p *PostStore) Create(ctx context.Context, post *domain.Post) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	return translate(p.db.WithContext(ctx).Create(post).Error)
}

// Update applies cols to the post only when author owns it.
func (p *PostStore) Update(ctx context.Context, id, author uuid.UUID, cols map[string]any) (*domain.Post, error) {
	res := p.db.WithContext(ctx).Model(&domain.Post{}).
		Where("id = ? AND author_id = ?", id, author).
		Updates(cols)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}
	return p.Get(ctx, id)
}

// Delete removes the post and its applications when author owns it.
func (p *PostStore) Delete(ctx context.Context, id, author uuid.UUID) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND author_id = ?", id, author).Delete(&domain.Post{})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return translate(tx.Where("post_id = ?", id).Delete(&domain.Application{}).Error)
	})
}

// IncrementViews bumps the counter in a single statement so concurrent
// viewers never lose an increment.
func (p *PostStore) IncrementViews(ctx context.Context, id uuid.UUID) error {
	res := p.db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostStore) SetAttachments(ctx context.Context, id, author uuid.UUID, urls []string) error {
	res := p.db.WithContext(ctx).Model(&domain.Post{}).
		Where("id = ? AND author_id = ?", id, author).
		Updates(map[string]any{"attachments": domain.StringList(urls), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
