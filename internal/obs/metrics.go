package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essence_gate_decisions_total",
			Help: "Authorization gate outcomes.",
		},
		[]string{"gate", "outcome"},
	)

	profilesProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essence_profiles_provisioned_total",
			Help: "Profiles synthesized on first access.",
		},
		[]string{"outcome"},
	)

	auditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "essence_audit_writes_total",
			Help: "Audit log appends by outcome.",
		},
		[]string{"status"},
	)
)

// Init registers all collectors with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		gateDecisions, profilesProvisioned, auditWrites,
	)
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GateDecision counts one authorization gate outcome ("allow", "redirect").
func GateDecision(gate, outcome string) {
	gateDecisions.WithLabelValues(gate, outcome).Inc()
}

// ProfileProvisioned counts one lazy profile synthesis attempt.
func ProfileProvisioned(outcome string) {
	profilesProvisioned.WithLabelValues(outcome).Inc()
}

// AuditWrite counts one audit append.
func AuditWrite(status string) {
	auditWrites.WithLabelValues(status).Inc()
}

// Instrument records RPS, latency and in-flight requests per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var knownPaths = map[string]struct{}{
	"/":                 {},
	"/login":            {},
	"/signup":           {},
	"/logout":           {},
	"/dashboard":        {},
	"/admin":            {},
	"/admin/users":      {},
	"/admin/groups":     {},
	"/admin/sync-users": {},
	"/admin/audit-logs": {},
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
}

// CanonicalPath bounds label cardinality: known routes pass through, query
// strings and trailing slashes are stripped, anything else is "other".
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	if _, ok := knownPaths[p]; ok {
		return p
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
