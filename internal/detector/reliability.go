package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliabilityConfig — настройки защитной обертки над скорером.
type ReliabilityConfig struct {
	// Timeout — жесткая граница всего вызова: либо ответ, либо деградация
	Timeout time.Duration
	// RPS и Burst для лимитера исходящих вызовов
	RPS   float64
	Burst int

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
}

// Reliability оборачивает Scorer в Rate Limiter -> Circuit Breaker -> Retries
// под общим таймаутом. Любой исход, кроме успешного скора, для движка
// одинаков: деградация детектора (не сбой подачи).
type Reliability struct {
	next    Scorer
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

func NewReliability(next Scorer, cfg ReliabilityConfig) *Reliability {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hallucination-detector",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (перестаем дергать модель)
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Reliability{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		timeout: cfg.Timeout,
	}
}

func (w *Reliability) Score(ctx context.Context, query, response string) (float64, error) {
	// Общая граница вызова: дольше таймаута детектор не живет никогда
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("detector rate limit exceeded: %w", err)
	}

	var score float64

	// 2. Circuit Breaker
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если скорер вернул ThrottleError (считал Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			var callErr error
			score, callErr = w.next.Score(ctx, query, response)
			return callErr
		})

		return score, retryErr
	})

	if err != nil {
		return 0, err
	}

	return cbResult.(float64), nil
}
