package store

import (
	"context"
	"time"

	"courtside/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileStore struct{ db *gorm.DB }

func (s *Store) Profiles() *ProfileStore { return &ProfileStore{db: s.DB} }

func (p *ProfileStore) Get(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var prof domain.Profile
	if err := p.db.WithContext(ctx).First(&prof, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &prof, nil
}

// GetMany loads every listed profile in one query. Missing ids are absent
// from the result.
func (p *ProfileStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Profile, error) {
	out := make(map[uuid.UUID]domain.Profile, len(ids))
	uniq := dedupe(ids)
	if len(uniq) == 0 {
		return out, nil
	}
	var rows []domain.Profile
	if err := p.db.WithContext(ctx).Where("id IN ?", uniq).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// Create inserts prof unless a row with the same id exists. created is false
// when the row was already there.
func (p *ProfileStore) Create(ctx context.Context, prof *domain.Profile) (created bool, err error) {
	res := p.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(prof)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *ProfileStore) Update(ctx context.Context, id uuid.UUID, cols map[string]any) (*domain.Profile, error) {
	res := p.db.WithContext(ctx).Model(&domain.Profile{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}
	return p.Get(ctx, id)
}

func (p *ProfileStore) SetPhotoURL(ctx context.Context, id uuid.UUID, url *string) error {
	res := p.db.WithContext(ctx).Model(&domain.Profile{}).Where("id = ?", id).
		Updates(map[string]any{"profile_photo_url": url, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
