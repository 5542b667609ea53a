package detector

import (
	"context"
	"fmt"
	"time"
)

// Scorer — контракт детектора галлюцинаций.
// Score возвращает риск [0,1]: выше = больше подозрений на фабрикацию.
// Реализация обязана уложиться в таймаут вызывающего; любая ошибка
// трактуется движком как деградация (confidence 0 + флаг), а не сбой подачи.
type Scorer interface {
	Score(ctx context.Context, query, response string) (float64, error)
}

// ThrottleError сигнализирует, что внешний скорер просит подождать
// (прочитан Retry-After). Reliability-обертка использует его для умного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
