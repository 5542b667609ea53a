package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// WriteBatch пишет пачку событий одним INSERT. Плейсхолдеры строятся
// динамически под размер пачки.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_events
	numFields := 11
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		detail, _ := json.Marshal(e.Detail)

		vals = append(vals,
			e.ID, e.TraceID, e.OrganizationID, e.InteractionID, e.Action,
			e.Actor, detail, e.Status, e.DurationMs, e.Timestamp, e.Error,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_events (id, trace_id, organization_id, interaction_id, action, actor, detail, status, duration_ms, timestamp, error) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}

// FetchEvents — последние события организации для консоли.
func (r *AuditRepo) FetchEvents(ctx context.Context, orgID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, trace_id, organization_id, interaction_id, action, actor, detail, status, duration_ms, timestamp, error
		FROM audit_events
		WHERE organization_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []audit.Event
	for rows.Next() {
		var e audit.Event
		var detail []byte
		if err := rows.Scan(&e.ID, &e.TraceID, &e.OrganizationID, &e.InteractionID,
			&e.Action, &e.Actor, &detail, &e.Status, &e.DurationMs, &e.Timestamp, &e.Error); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
