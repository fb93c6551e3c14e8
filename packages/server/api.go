package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"devflow-autopilot/packages/ai"
	"devflow-autopilot/packages/rollback"
	"devflow-autopilot/packages/service"
	"devflow-autopilot/types"

	"github.com/chainguard-dev/clog"
)

type failure struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind string) int {
	if types.IsClientKind(kind) {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

// fail reports err as a JSON failure. Caller mistakes are 400, everything
// else is a 200 with success false.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := types.ErrorKind(err)
	clog.FromContext(r.Context()).With("error_kind", kind).Warnf("Request failed: %v", err)
	writeJSON(w, statusFor(kind), failure{Error: err.Error(), ErrorKind: kind})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := io.Reader(r.Body)
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &types.ValidationError{Field: "body", Reason: "request body too large"}
		}
		return &types.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	return nil
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req service.AnalyzeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.api.Analyze(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postDeployAnalysis(w http.ResponseWriter, r *http.Request) {
	var req ai.DeployFailure
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.api.PostDeployAnalysis(r.Context(), req)
	if err != nil && report == nil {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		clog.FromContext(r.Context()).Warnf("Root cause analysis incomplete: %v", err)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) rollbackCandidates(w http.ResponseWriter, r *http.Request) {
	var req rollback.CandidatesRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	candidates, err := s.api.Candidates(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success    bool                      `json:"success"`
		Candidates []types.RollbackCandidate `json:"candidates"`
	}{true, candidates})
}

type safetyResponse struct {
	Success bool `json:"success"`
	types.SafetyAssessment
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (s *Server) rollbackSafetyCheck(w http.ResponseWriter, r *http.Request) {
	var req rollback.SafetyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.api.SafetyCheck(r.Context(), req)
	if err != nil {
		kind := types.ErrorKind(err)
		if statusFor(kind) != http.StatusOK {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, safetyResponse{SafetyAssessment: a, Error: err.Error(), ErrorKind: kind})
		return
	}
	writeJSON(w, http.StatusOK, safetyResponse{Success: true, SafetyAssessment: a})
}

func (s *Server) rollbackExecute(w http.ResponseWriter, r *http.Request) {
	var req rollback.ExecuteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res := s.api.ExecuteRollback(r.Context(), req)
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.ErrorKind)
	}
	writeJSON(w, status, res)
}

func (s *Server) seo(w http.ResponseWriter, r *http.Request) {
	var req service.SEORequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.api.SEO(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) pushCheck(w http.ResponseWriter, r *http.Request) {
	var req service.PushCheckRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.api.CheckPush(r.Context(), req))
}
