package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricHTTPRequests/MetricHTTPDuration name the generic request counters
// every router (analyzer and orchestrator alike) shares, distinct from the
// domain-specific C11 metric names declared in recorder.go.
const (
	MetricHTTPRequests = "http_requests_total"
	MetricHTTPDuration  = "http_request_duration_seconds"
)

// Handler exposes reg on /metrics via promhttp, matching the teacher's
// metrics.Handler().
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps next with a request counter and duration
// histogram, keyed by method/path/status, matching the teacher's
// InstrumentHandler shape in internal/app/metrics/metrics.go. It never
// instruments /metrics itself, to avoid self-referential series.
func (r *Recorder) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, req)

		labels := map[string]string{
			"method": req.Method,
			"path":   req.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		r.Counter(MetricHTTPRequests, labels, 1)
		r.Observe(MetricHTTPDuration, labels, time.Since(start).Seconds())
	})
}
