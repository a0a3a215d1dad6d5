package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ledgerworks/integration-runtime/internal/metrics"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an id, generating one when the
// caller did not supply it. The id is echoed in the response so log
// lines can be correlated across systems.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		r.Header.Set(requestIDHeader, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// healthPollPaths are the routes hit by liveness probes. They are only
// access-logged at debug level to keep steady-state logs readable.
var healthPollPaths = map[string]bool{
	"/healthz": true,
	"/status":  true,
}

func accessLog(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthPollPaths[r.URL.Path] && !logger.DebugEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			log.WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", sw.status).
				WithField("duration", time.Since(start).String()).
				WithField("request_id", r.Header.Get(requestIDHeader)).
				Info("http request")
		})
	}
}

// instrument feeds the Prometheus HTTP collectors, labelling by route
// template rather than raw path so webhook routes with parameters do
// not explode metric cardinality.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
