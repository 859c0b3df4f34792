// Package service contains the business logic of the playground.
//
// Handler (HTTP/MCP/CLI) → Service (rules, orchestration) → Repository/Runtime
//
// Services accept plain Go values and return domain errors from apperror, so
// the same logic serves the HTTP API, the MCP tools and the CLI. Every
// dependency is an interface injected by the caller; tests pass hand-written
// fakes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

const (
	MaxSnippetNameLength = 100
	MaxDescriptionLength = 500
	MaxCodeLength        = 100000 // ~100KB of source
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// EditTokenIssuer hands out the token that later authorizes changes to a
// snippet. auth.TokenService implements it.
type EditTokenIssuer interface {
	Issue(snippetID string) (string, error)
}

// SnippetInput carries the user-editable fields of a snippet.
type SnippetInput struct {
	Name        string
	Language    string
	Code        string
	Description string
}

// SnippetService manages saved snippets and the read-only built-in examples.
type SnippetService struct {
	repo   repository.SnippetRepository
	tokens EditTokenIssuer
	logger *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, tokens EditTokenIssuer, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		tokens: tokens,
		logger: logger,
	}
}

// Create validates and stores a snippet, returning it together with its
// edit token. The token is shown once; it is not stored anywhere.
func (s *SnippetService) Create(ctx context.Context, in SnippetInput) (*model.Snippet, string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, "", apperror.ValidationFailed("name", "snippet name is required")
	}
	if err := validateName(name); err != nil {
		return nil, "", err
	}
	lang, err := executor.ParseLanguage(in.Language)
	if err != nil {
		return nil, "", err
	}
	if err := validateBody(in.Code, in.Description); err != nil {
		return nil, "", err
	}

	snippet := &model.Snippet{
		Name:        name,
		Language:    string(lang),
		Code:        in.Code,
		Description: strings.TrimSpace(in.Description),
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("creating snippet: %w", err)
	}

	token, err := s.tokens.Issue(snippet.ID)
	if err != nil {
		return nil, "", fmt.Errorf("issuing edit token: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("language", snippet.Language),
	)
	return snippet, token, nil
}

// GetByID resolves built-in examples first, then the store.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	if ex, ok := builtinByID(id); ok {
		return ex, nil
	}
	if isBuiltinID(id) {
		return nil, apperror.NotFound("snippet", id)
	}

	return s.repo.GetByID(ctx, id)
}

// List pages through saved snippets, newest first. language may be empty.
func (s *SnippetService) List(ctx context.Context, limit, offset int, language string) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	opts := repository.ListOptions{Limit: limit, Offset: offset}
	if strings.TrimSpace(language) != "" {
		lang, err := executor.ParseLanguage(language)
		if err != nil {
			return nil, err
		}
		opts.Language = string(lang)
	}

	snippets, err := s.repo.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update applies in to an existing snippet. Empty name or language leave the
// current value; code and description are always replaced.
func (s *SnippetService) Update(ctx context.Context, id string, in SnippetInput) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	if isBuiltinID(id) {
		return nil, apperror.Forbidden("built-in examples are read-only")
	}

	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		if err := validateName(name); err != nil {
			return nil, err
		}
		snippet.Name = name
	}
	if strings.TrimSpace(in.Language) != "" {
		lang, err := executor.ParseLanguage(in.Language)
		if err != nil {
			return nil, err
		}
		snippet.Language = string(lang)
	}
	if err := validateBody(in.Code, in.Description); err != nil {
		return nil, err
	}
	snippet.Code = in.Code
	snippet.Description = strings.TrimSpace(in.Description)

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", snippet.ID))
	return snippet, nil
}

func (s *SnippetService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "snippet ID is required")
	}
	if isBuiltinID(id) {
		return apperror.Forbidden("built-in examples are read-only")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// Examples returns the built-in examples.
func (s *SnippetService) Examples() []model.Snippet {
	return Examples()
}

func validateName(name string) error {
	if len(name) > MaxSnippetNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("snippet name must be %d characters or less", MaxSnippetNameLength))
	}
	return nil
}

func validateBody(code, description string) error {
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if len(strings.TrimSpace(description)) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}
