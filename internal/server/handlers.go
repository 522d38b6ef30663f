package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/longmans/prompt-agent/internal/db"
	"github.com/longmans/prompt-agent/internal/llm/adapter"
	"github.com/longmans/prompt-agent/internal/optimizer"
)

// statusClientClosedRequest is logged when the caller went away mid-run.
const statusClientClosedRequest = 499

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ExamplesParseRequest is the body of POST /api/v1/examples/parse.
type ExamplesParseRequest struct {
	Text string `json:"text"`
}

// ExamplesParseResponse reports the parsed examples and whether they form a
// consistent set.
type ExamplesParseResponse struct {
	Examples []optimizer.Example `json:"examples"`
	Count    int                 `json:"count"`
	Valid    bool                `json:"valid"`
	Error    string              `json:"error,omitempty"`
}

// PromptValidateRequest is the body of POST /api/v1/prompts/validate.
type PromptValidateRequest struct {
	Prompt    string `json:"prompt"`
	Variables string `json:"variables"`
}

// PromptValidateResponse extends the variable report with a definitions
// template for undefined variables.
type PromptValidateResponse struct {
	optimizer.VariableReport
	Variables []string `json:"variables"`
	Hint      string   `json:"hint,omitempty"`
}

// ProviderInfo describes one provider in GET /api/v1/providers.
type ProviderInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
	Default    bool   `json:"default"`
	Cached     bool   `json:"cached"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleReady reports ready once at least one provider is configured and
// the history store, when enabled, answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Get(r.Context())
	configured := cfg.ConfiguredProviders()

	checks := map[string]string{"providers": "ok"}
	ready := s.IsRunning() && len(configured) > 0
	if len(configured) == 0 {
		checks["providers"] = "no provider configured"
	}
	if s.store != nil {
		checks["store"] = "ok"
		if err := s.store.Ping(r.Context()); err != nil {
			checks["store"] = err.Error()
			ready = false
		}
	}
	if !s.IsRunning() {
		checks["server"] = "not running"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Get(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":                 "prompt-agent",
		"version":              Version,
		"default_provider":     cfg.DefaultModel(),
		"configured_providers": nonNil(cfg.ConfiguredProviders()),
		"history_enabled":      s.store != nil,
		"metrics_enabled":      cfg.Metrics.Enabled,
		"timestamp":            time.Now().Format(time.RFC3339),
	})
}

// handleOptimize runs one optimization. ?format=markdown or ?format=summary
// return the rendered report instead of JSON.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, &optimizer.RequestValidationError{Field: "body", Message: fmt.Sprintf("failed to read body: %v", err)})
		return
	}
	req, err := optimizer.ParseRequest(body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	resp, err := s.service.Optimize(r.Context(), req, nil)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "markdown":
		writeText(w, "text/markdown; charset=utf-8", optimizer.RenderReport(resp))
	case "summary":
		writeText(w, "text/markdown; charset=utf-8", optimizer.RenderSummary(resp))
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleHelp returns the request format description.
func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		cfg := s.config.Get(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"usage":            s.service.Help(),
			"default_model":    cfg.DefaultModel(),
			"supported_models": nonNil(cfg.SupportedModels()),
		})
		return
	}
	writeText(w, "text/markdown; charset=utf-8", s.service.Help())
}

// handleParseExamples accepts {"text": ...} JSON or the raw text itself.
func (s *Server) handleParseExamples(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, &optimizer.RequestValidationError{Field: "body", Message: fmt.Sprintf("failed to read body: %v", err)})
		return
	}
	text := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req ExamplesParseRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, &optimizer.RequestValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)})
			return
		}
		text = req.Text
	}

	examples, err := optimizer.ParseExamples(text)
	if err != nil {
		writeError(w, err)
		return
	}
	if examples == nil {
		examples = []optimizer.Example{}
	}

	resp := ExamplesParseResponse{Examples: examples, Count: len(examples), Valid: true}
	if err := optimizer.ValidateExamples(examples); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleValidatePrompt reports which {variables} of a prompt are defined.
func (s *Server) handleValidatePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &optimizer.RequestValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}

	report, err := optimizer.ValidatePrompt(req.Prompt, req.Variables)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := PromptValidateResponse{
		VariableReport: report,
		Variables:      nonNil(optimizer.ExtractVariables(req.Prompt)),
	}
	if !report.Valid {
		resp.Hint = optimizer.VariableHint(req.Prompt)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListRuns lists stored runs newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "run history is disabled"})
		return
	}

	limit, err := queryInt(r, "limit", s.config.Get(r.Context()).Storage.HistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	runs, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	total, err := s.store.CountRuns(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"count":  len(runs),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetRun returns one stored run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "run history is disabled"})
		return
	}

	run, err := s.store.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		writeText(w, "text/markdown; charset=utf-8", optimizer.RenderReport(*run))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleDeleteRun removes a stored run.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "run history is disabled"})
		return
	}
	if err := s.store.DeleteRun(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUsage reports token usage and the daily spend against the budget.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.budget == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "usage tracking is disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.budget.Summary())
}

// handleProviders lists every provider with its model and status.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Get(r.Context())
	configured := make(map[string]bool)
	for _, p := range cfg.ConfiguredProviders() {
		configured[p] = true
	}
	cached := make(map[adapter.ProviderType]bool)
	if s.registry != nil {
		for _, p := range s.registry.Cached() {
			cached[p] = true
		}
	}

	providers := make([]ProviderInfo, 0, len(adapter.Providers))
	for _, p := range adapter.Providers {
		pc, _ := cfg.ProviderConfig(p)
		providers = append(providers, ProviderInfo{
			Name:       string(p),
			Model:      pc.Model,
			Configured: configured[string(p)],
			Default:    string(p) == cfg.DefaultModel(),
			Cached:     cached[p],
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers":        providers,
		"default_provider": cfg.DefaultModel(),
	})
}

// writeFailure maps err to a response and logs server-side failures.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if code == statusClientClosedRequest {
		s.logger.Info("client went away", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, err)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var parseErr *optimizer.ParseError
	switch {
	case optimizer.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.Is(err, adapter.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, adapter.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var verr *optimizer.RequestValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &optimizer.RequestValidationError{Field: name, Message: fmt.Sprintf("must be a non-negative integer, got %q", raw)}
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
