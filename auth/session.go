// Package auth implements the PIN gate that guards write access. A correct
// PIN yields a short-lived signed session token carrying an anonymous
// editor identity, which saves record as updatedBy for the audit trail.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pharmaboard/highlights-api/interfaces"
)

// ErrBadPIN reports a failed PIN check. Deliberately carries no detail.
var ErrBadPIN = errors.New("incorrect pin")

const tokenIssuer = "highlights-api"

type contextKey string

const editorContextKey contextKey = "editorID"

// SessionServiceImpl implements the interfaces.SessionService interface
type SessionServiceImpl struct {
	pin    string
	secret []byte
	ttl    time.Duration
}

// Ensure SessionServiceImpl implements the SessionService interface
var _ interfaces.SessionService = (*SessionServiceImpl)(nil)

// NewSessionService creates a session service for the given PIN and
// signing secret.
func NewSessionService(pin, secret string, ttl time.Duration) *SessionServiceImpl {
	return &SessionServiceImpl{
		pin:    pin,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// VerifyPIN checks the submitted PIN. Hashing both sides first keeps the
// comparison constant time across mismatched lengths.
func (s *SessionServiceImpl) VerifyPIN(pin string) error {
	submitted := sha256.Sum256([]byte(pin))
	expected := sha256.Sum256([]byte(s.pin))
	if subtle.ConstantTimeCompare(submitted[:], expected[:]) != 1 {
		return ErrBadPIN
	}
	return nil
}

// IssueToken mints a session token for an anonymous editor.
func (s *SessionServiceImpl) IssueToken() (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "editor-" + uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken returns the editor identity carried by the token. Expiry
// is checked by the parser.
func (s *SessionServiceImpl) ValidateToken(tokenStr string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("invalid session token")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", errors.New("invalid session claims")
	}
	if claims.Issuer != tokenIssuer {
		return "", errors.New("invalid token issuer")
	}
	if claims.Subject == "" {
		return "", errors.New("token carries no editor identity")
	}
	return claims.Subject, nil
}

// RequireEditor wraps a handler so only requests holding a valid session
// token reach it. The editor identity is attached to the request context.
func (s *SessionServiceImpl) RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondUnauthorized(w, "Missing session token")
			return
		}

		editorID, err := s.ValidateToken(token)
		if err != nil {
			respondUnauthorized(w, "Invalid or expired session token")
			return
		}

		ctx := context.WithValue(r.Context(), editorContextKey, editorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// EditorID returns the editor identity attached by RequireEditor, or ""
// when the request did not pass through it.
func EditorID(ctx context.Context) string {
	id, _ := ctx.Value(editorContextKey).(string)
	return id
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"error":   http.StatusText(http.StatusUnauthorized),
		"message": message,
		"code":    http.StatusUnauthorized,
	})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write(payload)
}
