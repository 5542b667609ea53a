package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/veritas-trust-engine/internal/audit"
	"github.com/xela07ax/veritas-trust-engine/internal/export"
	"github.com/xela07ax/veritas-trust-engine/internal/infra/auth"
)

// RecordStreamer отдает срез для экспорта по одной записи
type RecordStreamer interface {
	Stream(ctx context.Context, f export.Filter) (<-chan export.Record, <-chan error)
}

type ExportHandler struct {
	repo   RecordStreamer
	trail  audit.Recorder
	logger *zap.Logger
}

func NewExportHandler(repo RecordStreamer, trail audit.Recorder, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{repo: repo, trail: trail, logger: logger.Named("export-handler")}
}

var exportContentTypes = map[export.Format]string{
	export.FormatCSV:  "text/csv",
	export.FormatJSON: "application/json",
	export.FormatPDF:  "application/pdf",
}

// Export выгружает аудиторский срез в запрошенном формате.
// GET /v1/audit/export?organization_id=&format=csv&from=&to=&status=
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	orgID := r.URL.Query().Get("organization_id")
	claims := auth.ClaimsFromContext(r.Context())
	if orgID == "" && claims != nil {
		orgID = claims.OrganizationID
	}
	if orgID == "" {
		http.Error(w, "organization_id is required", http.StatusBadRequest)
		return
	}
	if !auth.CanAccessOrganization(claims, orgID) {
		http.Error(w, "Token does not grant access to this organization", http.StatusForbidden)
		return
	}

	format, err := export.ParseFormat(defaultStr(r.URL.Query().Get("format"), "csv"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter, err := parseRangeFilter(r, orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	exporter, err := export.New(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, errCh := h.repo.Stream(r.Context(), filter)

	w.Header().Set("Content-Type", exportContentTypes[format])
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="interactions_%s.%s"`, orgID, format))

	// Заголовки уже ушли: ошибка на середине потока обрывает соединение,
	// статус не переписать
	if err := exporter.ExportStream(r.Context(), records, w); err != nil {
		h.logger.Error("export stream failed", zap.Error(err))
		return
	}
	if err := <-errCh; err != nil {
		h.logger.Error("export source failed", zap.Error(err))
		return
	}

	actor := "system"
	if claims != nil {
		actor = claims.UserID
	}
	h.trail.Record(audit.Event{
		ID:             uuid.New().String(),
		TraceID:        r.Header.Get("X-Trace-ID"),
		OrganizationID: orgID,
		Action:         audit.ActionExport,
		Actor:          actor,
		Detail: map[string]interface{}{
			"format": string(format),
			"from":   filter.From.UTC().Format(time.RFC3339Nano),
			"to":     filter.To.UTC().Format(time.RFC3339Nano),
		},
		Status:     "SUCCESS",
		Timestamp:  start,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
