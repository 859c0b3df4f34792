package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const snippetIDKey contextKey = "editableSnippetID"

// RequireEditToken guards routes under /{id}. The request must carry
// "Authorization: Bearer <token>" for the snippet named in the URL:
// a missing or invalid token is 401, a token for another snippet is 403.
func RequireEditToken(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "an edit token is required")
				return
			}

			id := chi.URLParam(r, "id")
			if err := tokens.Verify(token, id); err != nil {
				if errors.Is(err, ErrTokenMismatch) {
					writeAuthError(w, http.StatusForbidden, "edit token does not match this snippet")
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "edit token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), snippetIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EditableSnippetID returns the snippet the request's edit token unlocked.
func EditableSnippetID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(snippetIDKey).(string)
	return id, ok && id != ""
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
