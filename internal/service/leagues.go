package service

import (
	"context"
	"log/slog"

	"courtside/internal/domain"
	"courtside/internal/store"
)

type LeagueService struct {
	store  *store.Store
	logger *slog.Logger
}

func (s *LeagueService) List(ctx context.Context) ([]domain.League, error) {
	return s.store.Leagues().List(ctx)
}

// Create adds a league. Leagues are seeded by operators, so there is no
// acting identity.
func (s *LeagueService) Create(ctx context.Context, name, description string) (*domain.League, error) {
	league, err := domain.NewLeague(name, description)
	if err != nil {
		return nil, err
	}
	if err := s.store.Leagues().Create(ctx, league); err != nil {
		return nil, err
	}
	s.logger.Info("league created", "league_id", league.ID)
	return league, nil
}
