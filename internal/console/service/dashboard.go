package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

// StatsProvider — агрегаты по проверкам из хранилища
type StatsProvider interface {
	Stats(ctx context.Context, orgID string, since time.Time) (*domain.VerificationStats, error)
}

type DashboardService struct {
	repo StatsProvider
}

func NewDashboardService(repo StatsProvider) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetStats собирает сводку по организации за окно (по умолчанию 24 часа).
func (s *DashboardService) GetStats(ctx context.Context, orgID string, window time.Duration) (*domain.VerificationStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	stats, err := s.repo.Stats(ctx, orgID, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("dashboard: failed to collect stats: %w", err)
	}
	return stats, nil
}
