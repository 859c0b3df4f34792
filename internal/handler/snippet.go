package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/service"
)

// SnippetService is what the snippet endpoints need.
// service.SnippetService implements it.
type SnippetService interface {
	Create(ctx context.Context, in service.SnippetInput) (*model.Snippet, string, error)
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, limit, offset int, language string) ([]model.Snippet, error)
	Update(ctx context.Context, id string, in service.SnippetInput) (*model.Snippet, error)
	Delete(ctx context.Context, id string) error
	Examples() []model.Snippet
}

// SnippetRequest is the body of create and update.
type SnippetRequest struct {
	Name        string `json:"name"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (req SnippetRequest) input() service.SnippetInput {
	return service.SnippetInput{
		Name:        req.Name,
		Language:    req.Language,
		Code:        req.Code,
		Description: req.Description,
	}
}

// CreatedSnippetResponse is returned once, on create. The edit token is the
// only credential for later updates and is not recoverable.
type CreatedSnippetResponse struct {
	Snippet   *model.Snippet `json:"snippet"`
	EditToken string         `json:"editToken"`
}

type SnippetHandler struct {
	svc    SnippetService
	logger *slog.Logger
}

func NewSnippetHandler(svc SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, logger: logger}
}

// HandleExamples lists the built-in examples.
//
// HTTP: GET /api/examples
func (h *SnippetHandler) HandleExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Examples())
}

// HandleList pages through saved snippets.
//
// HTTP: GET /api/snippets?limit=20&offset=0&language=typescript
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, `"limit" must be an integer`)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeBadRequest(w, `"offset" must be an integer`)
		return
	}

	snippets, err := h.svc.List(r.Context(), limit, offset, q.Get("language"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleCreate stores a snippet and returns it with its edit token.
//
// HTTP: POST /api/snippets → 201
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req SnippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid snippet JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "invalid JSON body")
		return
	}

	snippet, token, err := h.svc.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedSnippetResponse{Snippet: snippet, EditToken: token})
}

// HandleGet returns one snippet or built-in example.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleUpdate replaces a snippet's fields. The route is guarded by
// auth.RequireEditToken.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req SnippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid snippet JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "invalid JSON body")
		return
	}

	snippet, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet. The route is guarded by
// auth.RequireEditToken.
//
// HTTP: DELETE /api/snippets/{id} → 204
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
