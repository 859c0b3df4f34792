// Package auth issues and checks snippet edit tokens.
//
// There are no accounts in the playground. Whoever creates a snippet gets an
// edit token back, and only that token can later update or delete it.
//
// An edit token is a JWT (HS256) whose "sub" claim is the snippet ID:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"sub":"<snippet id>","aud":["snippet-edit"],"exp":...}
//
// The server verifies it with the secret alone, so nothing is stored per
// snippet.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "js-playground"
	audience = "snippet-edit"

	// DefaultTokenTTL is how long an edit token stays valid.
	DefaultTokenTTL = 30 * 24 * time.Hour
)

var (
	ErrTokenExpired  = errors.New("auth: token expired")
	ErrTokenInvalid  = errors.New("auth: invalid token")
	ErrTokenMismatch = errors.New("auth: token does not grant access to this snippet")
)

// TokenService signs and verifies edit tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService rejects secrets shorter than 16 bytes. A ttl <= 0 means
// DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: edit token secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Issue returns a signed edit token for snippetID.
func (s *TokenService) Issue(snippetID string) (string, error) {
	return s.issueWithDuration(snippetID, s.ttl)
}

func (s *TokenService) issueWithDuration(snippetID string, d time.Duration) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   snippetID,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Subject validates tokenStr and returns the snippet ID it was issued for.
//
// Only HS256 is accepted, which rules out "alg: none" and key-confusion
// tricks.
func (s *TokenService) Subject(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || c.Subject == "" {
		return "", ErrTokenInvalid
	}
	return c.Subject, nil
}

// Verify checks that tokenStr is valid and was issued for snippetID.
func (s *TokenService) Verify(tokenStr, snippetID string) error {
	subject, err := s.Subject(tokenStr)
	if err != nil {
		return err
	}
	if subject != snippetID {
		return ErrTokenMismatch
	}
	return nil
}
