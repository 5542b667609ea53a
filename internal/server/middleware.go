package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

const zeroTraceID = "00000000-0000-0000-0000-000000000000"

// TracingMiddleware сопровождает каждый запрос сквозным Trace-ID:
// принимает клиентский X-Trace-ID либо генерирует свой, возвращает его
// в ответе и кладет в контекст для audit trail.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceIDFromContext достает Trace-ID; вне HTTP-пайплайна вернет нулевой.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return zeroTraceID
}
