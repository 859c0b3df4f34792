package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/model"
)

// ExecutionService is what the execute, compile and stats endpoints need.
// service.ExecutionService implements it.
type ExecutionService interface {
	Execute(ctx context.Context, req executor.Request) (executor.Outcome, error)
	Transpile(ctx context.Context, code string) (string, error)
	Stats(ctx context.Context, since time.Time) (*model.RunStats, error)
}

// ExecuteRequest is the body of the execute and compile endpoints. Code is a
// pointer so a missing field can be told apart from an empty one.
type ExecuteRequest struct {
	Code     *string `json:"code"`
	Language string  `json:"language,omitempty"`
}

// SuccessResponse carries a successful run. Result is omitted when the code
// evaluated to undefined.
type SuccessResponse struct {
	Result  json.RawMessage `json:"result,omitempty"`
	Console []string        `json:"console"`
}

// FailureResponse carries a failed run. It is still sent with 200: the
// failure belongs to the code, not to the request.
type FailureResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Console []string `json:"console"`
}

// CompileResponse is the body of a successful compile.
type CompileResponse struct {
	JSCode string `json:"jsCode"`
}

type ExecuteHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

func NewExecuteHandler(svc ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleExecute runs JavaScript, or TypeScript when the body says
// "language":"typescript".
//
// HTTP: POST /api/execute
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, "")
}

// HandleExecuteTS always transpiles first.
//
// HTTP: POST /api/execute/ts
func (h *ExecuteHandler) HandleExecuteTS(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, executor.TypeScript)
}

func (h *ExecuteHandler) execute(w http.ResponseWriter, r *http.Request, force executor.Language) {
	code, language, ok := h.readCode(w, r)
	if !ok {
		return
	}
	if force != "" {
		language = string(force)
	}

	out, err := h.svc.Execute(r.Context(), executor.Request{
		Code:     code,
		Language: executor.Language(language),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	body, hostFault := OutcomeBody(out)
	if hostFault {
		// Not an outcome of the code: the sandbox itself could not run.
		h.logger.Error("sandbox host fault", slog.String("error", out.Err.Error()))
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Error: "Internal Server Error"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// OutcomeBody is the response body for an outcome, shared by every surface
// that reports executions. hostFault is true when the failure belongs to the
// host rather than the code; body is nil then.
func OutcomeBody(out executor.Outcome) (body any, hostFault bool) {
	if out.OK() {
		return SuccessResponse{Result: out.Value, Console: out.Logs}, false
	}
	kind := out.Kind()
	if kind == "internal" {
		return nil, true
	}
	return FailureResponse{Error: out.Err.Error(), Kind: kind, Console: out.Logs}, false
}

// HandleCompile transpiles TypeScript without running it.
//
// HTTP: POST /api/compile → {"jsCode": "..."}
func (h *ExecuteHandler) HandleCompile(w http.ResponseWriter, r *http.Request) {
	code, _, ok := h.readCode(w, r)
	if !ok {
		return
	}

	js, err := h.svc.Transpile(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CompileResponse{JSCode: js})
}

// HandleStats reports aggregate run history.
//
// HTTP: GET /api/stats?since=24h
func (h *ExecuteHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeBadRequest(w, `"since" must be a positive duration such as 24h`)
			return
		}
		since = time.Now().Add(-d)
	}

	stats, err := h.svc.Stats(r.Context(), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// readCode decodes the body and insists on a non-empty code field. It writes
// the 400 itself and reports ok=false when the request is unusable.
func (h *ExecuteHandler) readCode(w http.ResponseWriter, r *http.Request) (code, language string, ok bool) {
	var req ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeBadRequest(w, "request body is too large")
			return "", "", false
		}
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeBadRequest(w, "invalid JSON body")
		return "", "", false
	}
	if req.Code == nil || *req.Code == "" {
		writeBadRequest(w, `"code" is required`)
		return "", "", false
	}
	return *req.Code, req.Language, true
}
