package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// One-time code purposes. A code issued for one purpose never satisfies a
// verification for another.
const (
	PurposeRegistration  = "registration"
	PurposeLogin         = "login"
	PurposePasswordReset = "password_reset"
)

const OTPLength = 6

type OTPService struct {
	ttl time.Duration
}

func NewOTPService(ttl time.Duration) *OTPService {
	return &OTPService{ttl: ttl}
}

// GenerateCode creates a 6-digit zero-padded numeric code using crypto/rand
func (s *OTPService) GenerateCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating random code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ExpiresAt returns when a newly issued code should expire
func (s *OTPService) ExpiresAt() time.Time {
	return time.Now().Add(s.ttl)
}

func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// ValidPurpose reports whether p names a known code purpose.
func ValidPurpose(p string) bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset:
		return true
	}
	return false
}
