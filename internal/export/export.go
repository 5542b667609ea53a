package export

/*
Пакет export выгружает аудиторские срезы проверенных взаимодействий
в CSV, JSON и PDF. Главное требование — байтовая детерминированность:
один и тот же срез при повторной выгрузке дает идентичный документ,
чтобы регулятор мог сверять отчеты по хэшу.

Правила детерминизма:
- фиксированный порядок полей: id, submitted_at, decided_at, query,
  response, status, violation_type, matched_rule_ids, confidence;
- таймстемпы RFC3339Nano в UTC;
- числа через strconv.FormatFloat(f, 'f', -1, 64);
- записи идут в порядке, который отдает хранилище (submitted_at, id).
*/

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Record — одна строка аудиторского среза (взаимодействие + вердикт)
type Record struct {
	ID             string
	SubmittedAt    time.Time
	DecidedAt      time.Time
	Query          string
	Response       string
	Status         domain.VerdictStatus
	ViolationType  domain.ViolationType
	MatchedRuleIDs []string
	Confidence     float64
}

func NewRecord(inter domain.Interaction, v domain.Verdict) Record {
	return Record{
		ID:             inter.ID,
		SubmittedAt:    inter.SubmittedAt,
		DecidedAt:      v.DecidedAt,
		Query:          inter.Query,
		Response:       inter.Response,
		Status:         v.Status,
		ViolationType:  v.ViolationType,
		MatchedRuleIDs: v.MatchedRuleIDs,
		Confidence:     v.Confidence,
	}
}

// Filter — границы среза. Обе границы времени включительные.
type Filter struct {
	OrganizationID string
	From           time.Time
	To             time.Time
	Status         domain.VerdictStatus // пустой = любой
}

// Contains проверяет попадание записи в срез. Границы [From, To]
// включительные с обеих сторон.
func (f Filter) Contains(r Record) bool {
	if r.SubmittedAt.Before(f.From) || r.SubmittedAt.After(f.To) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// Exporter пишет поток записей в документ. Реализации не буферизуют
// весь срез в памяти (кроме PDF, где этого требует формат).
type Exporter interface {
	ExportStream(ctx context.Context, records <-chan Record, w io.Writer) error
}

// New возвращает экспортер нужного формата.
func New(format Format) (Exporter, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter(true), nil
	case FormatJSON:
		return NewJSONExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Канонические представления значений, общие для всех форматов

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatConfidence(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinRuleIDs(ids []string) string {
	return strings.Join(ids, ";")
}
