package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVExporter пишет срез в RFC4180 CSV (запятая, кавычки по необходимости).
type CSVExporter struct {
	// IncludeHeader добавляет строку заголовка
	IncludeHeader bool
}

func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// ExportStream потоково выгружает записи из канала. Память под весь
// срез не выделяется, writer периодически сбрасывается для прогресса
// длинных выгрузок.
func (e *CSVExporter) ExportStream(ctx context.Context, records <-chan Record, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return fmt.Errorf("csv export: %w", err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-records:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return fmt.Errorf("csv export after %d records: %w", count, err)
				}
				return nil
			}

			if err := writer.Write(recordRow(r)); err != nil {
				return fmt.Errorf("csv export after %d records: %w", count, err)
			}
			count++

			// Периодический flush каждые 100 записей
			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return fmt.Errorf("csv export after %d records: %w", count, err)
				}
			}
		}
	}
}

func headerRow() []string {
	return []string{
		"id", "submitted_at", "decided_at", "query", "response",
		"status", "violation_type", "matched_rule_ids", "confidence",
	}
}

func recordRow(r Record) []string {
	return []string{
		r.ID,
		formatTime(r.SubmittedAt),
		formatTime(r.DecidedAt),
		r.Query,
		r.Response,
		string(r.Status),
		string(r.ViolationType),
		joinRuleIDs(r.MatchedRuleIDs),
		formatConfidence(r.Confidence),
	}
}
