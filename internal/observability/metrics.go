package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/klyr/eudoxus/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	requestsTotal         *prometheus.CounterVec
	blocksTotal           *prometheus.CounterVec
	ruleMatchesTotal      *prometheus.CounterVec
	automatonLoadsTotal   *prometheus.CounterVec
	evaluationErrorsTotal *prometheus.CounterVec
	scannedBytesTotal     *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "eudoxus_requests_total", Help: "Total requests"},
			[]string{"site", "action", "code"},
		),
		blocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "eudoxus_blocks_total", Help: "Total blocked requests"},
			[]string{"site", "reason"},
		),
		ruleMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "eudoxus_rule_matches_total", Help: "Total rule matches"},
			[]string{"rule_id", "operator", "tag"},
		),
		automatonLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "eudoxus_automaton_loads_total", Help: "Automaton load attempts"},
			[]string{"automaton", "result"},
		),
		evaluationErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "eudoxus_evaluation_errors_total", Help: "Rule evaluations that could not run"},
			[]string{"rule_id"},
		),
		scannedBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "eudoxus_scanned_bytes_total", Help: "Bytes fed through automata"},
			[]string{"operator"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eudoxus_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"site"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal,
		m.blocksTotal,
		m.ruleMatchesTotal,
		m.automatonLoadsTotal,
		m.evaluationErrorsTotal,
		m.scannedBytesTotal,
		m.requestDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observe records one finished request. reason is empty for requests that
// were not blocked.
func (m *Metrics) Observe(decision logging.Decision, reason string) {
	if m == nil {
		return
	}

	site := decision.Site
	m.requestsTotal.WithLabelValues(site, decision.Action, strconv.Itoa(decision.StatusCode)).Inc()
	m.requestDuration.WithLabelValues(site).Observe((time.Duration(decision.DurationMS) * time.Millisecond).Seconds())

	if decision.Action == "block" {
		if reason == "" {
			reason = "rule"
		}
		m.blocksTotal.WithLabelValues(site, reason).Inc()
	}

	for _, match := range decision.MatchedRules {
		tag := "none"
		if len(match.Tags) > 0 {
			tag = match.Tags[0]
		}
		m.ruleMatchesTotal.WithLabelValues(match.ID, match.Operator, tag).Inc()
	}
}

func (m *Metrics) AutomatonLoaded(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.automatonLoadsTotal.WithLabelValues(name, result).Inc()
}

func (m *Metrics) EvaluationFailed(ruleID string) {
	if m == nil {
		return
	}
	m.evaluationErrorsTotal.WithLabelValues(ruleID).Inc()
}

func (m *Metrics) Scanned(operator string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.scannedBytesTotal.WithLabelValues(operator).Add(float64(n))
}
