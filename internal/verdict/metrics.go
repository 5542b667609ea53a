package verdict

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла проверка (детектор + правила + запись)
	SubmissionDuration *prometheus.HistogramVec

	// Traffic: общее кол-во проверок по исходу
	SubmissionsTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Детектор недоступен, вердикт вынесен деградированно
	DetectorDegraded prometheus.Counter

	// События, сброшенные fan-out (перегруженные подписчики)
	FanoutDropped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern: без регистратора метрики живут в локальном реестре
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SubmissionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veritas_submission_duration_seconds",
			Help:    "Histogram of interaction verification latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"status"}),

		SubmissionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_submissions_total",
			Help: "Total number of verified interactions by verdict status.",
		}, []string{"organization_id", "status"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_errors_total",
			Help: "Total number of submission errors by type.",
		}, []string{"type"}), // типы: invalid_org, malformed, persistence

		DetectorDegraded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "veritas_detector_degraded_total",
			Help: "Verdicts issued without a detector score.",
		}),

		FanoutDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "veritas_fanout_dropped_total",
			Help: "Verdict events dropped due to subscriber backpressure.",
		}),
	}
}
