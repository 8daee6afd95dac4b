package store

import (
	"context"

	"courtside/internal/domain"

	"gorm.io/gorm"
)

type LeagueStore struct{ db *gorm.DB }

func (s *Store) Leagues() *LeagueStore { return &LeagueStore{db: s.DB} }

// List returns every league, newest first.
func (l *LeagueStore) List(ctx context.Context) ([]domain.League, error) {
	var leagues []domain.League
	if err := l.db.WithContext(ctx).Order("created_at DESC").Find(&leagues).Error; err != nil {
		return nil, translate(err)
	}
	return leagues, nil
}

func (l *LeagueStore) Create(ctx context.Context, league *domain.League) error {
	return translate(l.db.WithContext(ctx).Create(league).Error)
}
