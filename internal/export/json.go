package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// JSONExporter пишет срез как JSON-массив, запись за записью.
type JSONExporter struct{}

func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// wire-структура с фиксированным порядком ключей и каноническими
// строковыми представлениями времени и числа
type jsonRecord struct {
	ID             string      `json:"id"`
	SubmittedAt    string      `json:"submitted_at"`
	DecidedAt      string      `json:"decided_at"`
	Query          string      `json:"query"`
	Response       string      `json:"response"`
	Status         string      `json:"status"`
	ViolationType  string      `json:"violation_type"`
	MatchedRuleIDs []string    `json:"matched_rule_ids"`
	Confidence     json.Number `json:"confidence"`
}

func toWire(r Record) jsonRecord {
	ids := r.MatchedRuleIDs
	if ids == nil {
		ids = []string{}
	}
	return jsonRecord{
		ID:             r.ID,
		SubmittedAt:    formatTime(r.SubmittedAt),
		DecidedAt:      formatTime(r.DecidedAt),
		Query:          r.Query,
		Response:       r.Response,
		Status:         string(r.Status),
		ViolationType:  string(r.ViolationType),
		MatchedRuleIDs: ids,
		Confidence:     json.Number(formatConfidence(r.Confidence)),
	}
}

// ExportStream потоково сериализует записи из канала в JSON-массив.
// Пустой срез дает валидный документ "[]".
func (e *JSONExporter) ExportStream(ctx context.Context, records <-chan Record, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return fmt.Errorf("json export: %w", err)
	}

	first := true
	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-records:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return fmt.Errorf("json export after %d records: %w", count, err)
				}
				return nil
			}

			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return fmt.Errorf("json export after %d records: %w", count, err)
				}
			}
			first = false

			data, err := json.Marshal(toWire(r))
			if err != nil {
				return fmt.Errorf("json export after %d records: %w", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("json export after %d records: %w", count, err)
			}
			count++
		}
	}
}
