package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes.
const (
	OutcomePerfect  = "perfect"
	OutcomeScored   = "scored"
	OutcomeExpired  = "expired"
	OutcomeRejected = "rejected"
)

// Metrics groups the collectors exposed on /metrics.
type Metrics struct {
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SessionsStarted  prometheus.Counter
	StartRejections  *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	RewardsQueued    prometheus.Counter
	RewardsPersisted prometheus.Counter
	Redelivered      *prometheus.CounterVec
	LiveControllers  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Quiz sessions opened on the ledger",
		}),
		StartRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_start_rejections_total",
				Help: "Session starts refused by the ledger",
			},
			[]string{"reason"},
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_submissions_total",
				Help: "Answer submissions by outcome",
			},
			[]string{"outcome"},
		),
		RewardsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_rewards_queued_total",
			Help: "Perfect-score rewards queued for persistence",
		}),
		RewardsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_rewards_persisted_total",
			Help: "Reward events written to PostgreSQL",
		}),
		Redelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_redelivered_total",
				Help: "Completed sessions re-queued by the reconciler",
			},
			[]string{"queue"},
		),
		LiveControllers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_live_controllers",
			Help: "Quiz controllers attached to open WebSocket connections",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.SessionsStarted,
		m.StartRejections,
		m.Submissions,
		m.RewardsQueued,
		m.RewardsPersisted,
		m.Redelivered,
		m.LiveControllers,
	)
	return m
}

// Middleware records request counts and latencies per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
