package server

import (
	"net/http"
	"strconv"
	"time"

	"devflow-autopilot/packages/metrics"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// requestContext stores a request scoped logger in the context. An incoming
// X-Request-ID is kept, otherwise one is generated.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		logger := clog.FromContext(r.Context()).With("method", r.Method, "path", r.URL.Path, "request_id", reqID)
		ctx := clog.WithLogger(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instrument logs each request and records it by route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(route, strconv.Itoa(rec.status), elapsed)
		clog.FromContext(r.Context()).With("status", rec.status, "latency_ms", elapsed.Milliseconds()).Info("request")
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				clog.FromContext(r.Context()).Errorf("Recovered from panic: %v", rec)
				writeJSON(w, http.StatusInternalServerError, failure{Error: "internal server error", ErrorKind: "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
