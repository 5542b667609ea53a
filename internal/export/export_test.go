package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/veritas-trust-engine/internal/domain"
)

func sampleRecords() []Record {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []Record{
		{
			ID:             "i-001",
			SubmittedAt:    base,
			DecidedAt:      base.Add(120 * time.Millisecond),
			Query:          "What is our refund policy?",
			Response:       "All sales are final, no refunds ever.",
			Status:         domain.StatusFlagged,
			ViolationType:  domain.ViolationPolicy,
			MatchedRuleIDs: []string{"r-refund", "r-tone"},
			Confidence:     0.35,
		},
		{
			ID:            "i-002",
			SubmittedAt:   base.Add(time.Minute),
			DecidedAt:     base.Add(time.Minute + 90*time.Millisecond),
			Query:         "Who designed the iPhone?",
			Response:      "Steve Jobs personally invented the iPhone in 2005.",
			Status:        domain.StatusBlocked,
			ViolationType: domain.ViolationHallucination,
			Confidence:    0.83,
		},
	}
}

func feed(records []Record) <-chan Record {
	ch := make(chan Record, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return ch
}

func runExport(t *testing.T, format Format, records []Record) []byte {
	t.Helper()
	exp, err := New(format)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, exp.ExportStream(context.Background(), feed(records), &buf))
	return buf.Bytes()
}

// Один и тот же срез обязан давать байт-в-байт одинаковый документ.
func TestExportByteDeterminism(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatJSON, FormatPDF} {
		t.Run(string(format), func(t *testing.T) {
			first := runExport(t, format, sampleRecords())
			second := runExport(t, format, sampleRecords())
			assert.Equal(t, first, second)
		})
	}
}

func TestExportEmptyRangeIsValidDocument(t *testing.T) {
	csvOut := runExport(t, FormatCSV, nil)
	assert.Equal(t, "id,submitted_at,decided_at,query,response,status,violation_type,matched_rule_ids,confidence\n", string(csvOut))

	jsonOut := runExport(t, FormatJSON, nil)
	assert.Equal(t, "[]", string(jsonOut))

	pdfOut := runExport(t, FormatPDF, nil)
	assert.True(t, bytes.HasPrefix(pdfOut, []byte("%PDF")))
}

func TestCSVFieldOrderAndEncoding(t *testing.T) {
	out := string(runExport(t, FormatCSV, sampleRecords()))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "id,submitted_at,decided_at,query,response,status,violation_type,matched_rule_ids,confidence", lines[0])
	// Запятая внутри ответа экранируется кавычками (RFC4180)
	assert.Contains(t, lines[1], `"All sales are final, no refunds ever."`)
	// matched_rule_ids склеиваются через ";"
	assert.Contains(t, lines[1], "r-refund;r-tone")
	// Таймстемп RFC3339Nano UTC
	assert.Contains(t, lines[1], "2026-03-10T09:00:00Z")
	assert.Contains(t, lines[1], "0.35")
}

func TestJSONShapeAndValues(t *testing.T) {
	out := runExport(t, FormatJSON, sampleRecords())

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, "i-001", decoded[0]["id"])
	assert.Equal(t, "2026-03-10T09:00:00Z", decoded[0]["submitted_at"])
	assert.Equal(t, "flagged", decoded[0]["status"])
	assert.Equal(t, []interface{}{"r-refund", "r-tone"}, decoded[0]["matched_rule_ids"])
	assert.Equal(t, 0.35, decoded[0]["confidence"])
	// Отсутствие правил кодируется пустым массивом, не null
	assert.Equal(t, []interface{}{}, decoded[1]["matched_rule_ids"])

	// Порядок ключей в сыром документе фиксирован
	assert.Less(t, bytes.Index(out, []byte(`"id"`)), bytes.Index(out, []byte(`"submitted_at"`)))
	assert.Less(t, bytes.Index(out, []byte(`"submitted_at"`)), bytes.Index(out, []byte(`"decided_at"`)))
}

func TestFilterContainsInclusiveBounds(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	f := Filter{OrganizationID: "org-1", From: from, To: to}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"ровно From", from, true},
		{"ровно To", to, true},
		{"внутри", from.Add(15 * 24 * time.Hour), true},
		{"за наносекунду до From", from.Add(-time.Nanosecond), false},
		{"через наносекунду после To", to.Add(time.Nanosecond), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.Contains(Record{SubmittedAt: tc.at}))
		})
	}
}

func TestFilterStatus(t *testing.T) {
	f := Filter{
		From:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Status: domain.StatusBlocked,
	}
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, f.Contains(Record{SubmittedAt: at, Status: domain.StatusBlocked}))
	assert.False(t, f.Contains(Record{SubmittedAt: at, Status: domain.StatusApproved}))
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "CSV", "json", "pdf"} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestExportStreamHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exp, err := New(FormatCSV)
	require.NoError(t, err)

	ch := make(chan Record) // никогда не закроется
	var buf bytes.Buffer
	err = exp.ExportStream(ctx, ch, &buf)
	assert.ErrorIs(t, err, context.Canceled)
}
