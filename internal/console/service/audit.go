package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
)

// AuditLogProvider описывает контракт для чтения событий Audit Trail.
type AuditLogProvider interface {
	FetchEvents(ctx context.Context, orgID string, limit int) ([]audit.Event, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) FetchEvents(ctx context.Context, orgID string, limit int) ([]audit.Event, error) {
	events, err := s.repo.FetchEvents(ctx, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch events: %w", err)
	}
	return events, nil
}
