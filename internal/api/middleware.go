package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"beacon/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// identity is the authenticated caller extracted from a verified access
// token. sessionID is the jti the token was minted under.
type identity struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

type AuthMiddleware struct {
	jwtService *auth.JWTService
}

func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			unauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.jwtService.ValidateAccessToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrSecretMissing) {
				misconfigured(w)
				return
			}
			unauthorized(w, "Invalid or expired token")
			return
		}

		if claims.Subject == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeBadTokenPayload, "Token payload is invalid")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity{
			UserID:    claims.Subject,
			Email:     claims.Email,
			Role:      claims.Role,
			SessionID: claims.ID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerIdentity(r *http.Request) identity {
	if v := r.Context().Value(identityKey); v != nil {
		if id, ok := v.(identity); ok {
			return id
		}
	}
	return identity{}
}

// GetUserID returns the authenticated user id, or "" outside RequireAuth.
func GetUserID(r *http.Request) string {
	return callerIdentity(r).UserID
}
