package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"beacon/internal/models"
)

// ErrSecretMissing reports an empty signing secret. This is a server
// configuration problem and must never be surfaced as an authentication
// failure.
var ErrSecretMissing = errors.New("jwt signing secret is not configured")

type JWTService struct {
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// Claims carried by access tokens. The subject is the user id and the jti is
// the session the token was issued under.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secret:          []byte(secret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

// GenerateAccessToken mints a signed, expiring access token bound to one
// session. Validity is self-contained: nothing about it is persisted.
func (s *JWTService) GenerateAccessToken(user *models.User, sessionID string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrSecretMissing
	}

	expiry := time.Now().Add(s.accessTokenTTL)
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return signed, expiry, nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrSecretMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// NewRefreshToken generates an opaque refresh token. The raw value goes to
// the client; only the hash is ever stored.
func (s *JWTService) NewRefreshToken() (raw string, hash string, err error) {
	raw, err = generateSecureToken(32)
	if err != nil {
		return "", "", fmt.Errorf("generating refresh token: %w", err)
	}
	return raw, hashToken(raw), nil
}

func (s *JWTService) RefreshTokenExpiry() time.Time {
	return time.Now().Add(s.refreshTokenTTL)
}

func HashRefreshToken(token string) string {
	return hashToken(token)
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
