package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedScorer struct {
	score float64
	err   error
	delay time.Duration
	calls int
}

func (s *scriptedScorer) Score(ctx context.Context, query, response string) (float64, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.score, s.err
}

func testCfg(timeout time.Duration) ReliabilityConfig {
	return ReliabilityConfig{
		Timeout:       timeout,
		RPS:           1000,
		Burst:         100,
		CBMaxRequests: 3,
		CBInterval:    time.Second,
		CBTimeout:     30 * time.Second,
	}
}

func TestReliabilityPassesThroughScore(t *testing.T) {
	inner := &scriptedScorer{score: 0.42}
	w := NewReliability(inner, testCfg(time.Second))

	score, err := w.Score(context.Background(), "q", "r")
	require.NoError(t, err)
	assert.Equal(t, 0.42, score)
	assert.Equal(t, 1, inner.calls)
}

// Медленный скорер обрезается общим таймаутом: вызов возвращается
// не позже границы, ошибкой, а не зависанием.
func TestReliabilityEnforcesTimeout(t *testing.T) {
	inner := &scriptedScorer{score: 0.9, delay: 2 * time.Second}
	w := NewReliability(inner, testCfg(50*time.Millisecond))

	start := time.Now()
	_, err := w.Score(context.Background(), "q", "r")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, time.Second)
}

func TestReliabilityRetriesTransientErrors(t *testing.T) {
	inner := &scriptedScorer{err: errors.New("upstream 500")}
	w := NewReliability(inner, testCfg(5*time.Second))

	_, err := w.Score(context.Background(), "q", "r")
	require.Error(t, err)
	// Attempts(3): исходный вызов + ретраи
	assert.Equal(t, 3, inner.calls)
}

func TestReliabilityThrottleDelayHonored(t *testing.T) {
	inner := &scriptedScorer{err: &ThrottleError{RetryAfter: 30 * time.Millisecond, Cause: errors.New("429")}}
	w := NewReliability(inner, testCfg(5*time.Second))

	start := time.Now()
	_, err := w.Score(context.Background(), "q", "r")
	require.Error(t, err)
	// Два ретрая по 30мс Retry-After
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

// После серии последовательных отказов предохранитель открывается
// и перестает дергать скорер.
func TestReliabilityCircuitBreakerOpens(t *testing.T) {
	inner := &scriptedScorer{err: errors.New("model down")}
	w := NewReliability(inner, testCfg(5*time.Second))

	// 6 неудачных Execute (ConsecutiveFailures > 5) открывают CB
	for i := 0; i < 6; i++ {
		_, err := w.Score(context.Background(), "q", "r")
		require.Error(t, err)
	}

	before := inner.calls
	_, err := w.Score(context.Background(), "q", "r")
	require.Error(t, err)
	assert.Equal(t, before, inner.calls, "открытый CB не должен пропускать вызовы")
}
