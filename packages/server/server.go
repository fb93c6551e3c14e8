// Package server exposes the services over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/config"
	"devflow-autopilot/packages/rollback"
	"devflow-autopilot/packages/service"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API is the set of operations served over HTTP.
type API interface {
	Analyze(ctx context.Context, req service.AnalyzeRequest) (*service.AnalyzeResponse, error)
	PostDeployAnalysis(ctx context.Context, f ai.DeployFailure) (*ai.RootCauseReport, error)
	Candidates(ctx context.Context, req rollback.CandidatesRequest) ([]types.RollbackCandidate, error)
	SafetyCheck(ctx context.Context, req rollback.SafetyRequest) (types.SafetyAssessment, error)
	ExecuteRollback(ctx context.Context, req rollback.ExecuteRequest) types.RollbackResult
	SEO(ctx context.Context, req service.SEORequest) (*service.SEOResult, error)
	CheckPush(ctx context.Context, req service.PushCheckRequest) types.PushCheck
}

type Server struct {
	api    API
	cfg    config.ServerConfig
	router *mux.Router
}

func New(api API, cfg config.ServerConfig) *Server {
	s := &Server{api: api, cfg: cfg, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(recoverPanics, requestContext, instrument)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/analyze/", s.analyze).Methods(http.MethodPost)
	r.HandleFunc("/analyze", s.analyze).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/post-deploy-analysis", s.postDeployAnalysis).Methods(http.MethodPost)
	api.HandleFunc("/rollback/candidates", s.rollbackCandidates).Methods(http.MethodPost)
	api.HandleFunc("/rollback/safety-check", s.rollbackSafetyCheck).Methods(http.MethodPost)
	api.HandleFunc("/rollback/execute", s.rollbackExecute).Methods(http.MethodPost)
	api.HandleFunc("/seo", s.seo).Methods(http.MethodPost)
	api.HandleFunc("/push/check", s.pushCheck).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, failure{Error: "no such route", ErrorKind: "not_found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, failure{Error: "method not allowed", ErrorKind: "invalid_request"})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		clog.FromContext(ctx).With("addr", s.cfg.Addr).Info("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	clog.FromContext(ctx).Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 10 * time.Second
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
