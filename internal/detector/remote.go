package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// HTTPScorer — адаптер внешнего скоринг-сервиса (ML-модель за HTTP API).
// Контракт: POST {base}/v1/score c парой query/response, в ответе score [0,1].
// 429 с Retry-After конвертируется в ThrottleError для умного бэкоффа
// в Reliability-обертке.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPScorer(baseURL string, logger *zap.Logger) *HTTPScorer {
	return &HTTPScorer{
		baseURL: baseURL,
		// Защитный таймаут на уровне клиента: даже если обертка сверху
		// имеет свой, адаптер должен иметь свой предел
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.Named("http-scorer"),
	}
}

type scoreRequest struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
	Model string  `json:"model,omitempty"`
}

func (s *HTTPScorer) Score(ctx context.Context, query, response string) (float64, error) {
	body, err := json.Marshal(scoreRequest{Query: query, Response: response})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scorer call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 1 * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, perr := strconv.Atoi(v); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return 0, &ThrottleError{RetryAfter: retryAfter, Cause: fmt.Errorf("scorer throttled")}
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode scorer response: %w", err)
	}

	if out.Score < 0 || out.Score > 1 {
		return 0, fmt.Errorf("scorer returned score out of range: %f", out.Score)
	}
	return out.Score, nil
}
