package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

type OrgRepo struct {
	pool *pgxpool.Pool
}

func NewOrgRepo(pool *pgxpool.Pool) *OrgRepo {
	return &OrgRepo{pool: pool}
}

func (r *OrgRepo) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	org := &domain.Organization{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, industry, block_threshold, created_at
		FROM organizations WHERE id = $1`, id).Scan(
		&org.ID, &org.Name, &org.Industry, &org.BlockThreshold, &org.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return org, nil
}

func (r *OrgRepo) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, industry, block_threshold, created_at
		FROM organizations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Industry, &org.BlockThreshold, &org.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, org)
	}
	return results, rows.Err()
}
