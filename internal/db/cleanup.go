package db

import (
	"context"
	"log/slog"
	"time"
)

const DefaultCleanupInterval = 1 * time.Hour

// CleanupService periodically deletes expired one-time codes and refresh
// tokens. Pending registrations are left alone: once their codes expire they
// are unreachable anyway, and keeping the row lets a user re-request a code.
type CleanupService struct {
	otpCodes      *OTPRepository
	refreshTokens *RefreshTokenRepository
	interval      time.Duration
}

func NewCleanupService(otpCodes *OTPRepository, refreshTokens *RefreshTokenRepository) *CleanupService {
	return &CleanupService{
		otpCodes:      otpCodes,
		refreshTokens: refreshTokens,
		interval:      DefaultCleanupInterval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting expired credential cleanup", "component", "cleanup", "interval", s.interval)

	s.runCleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping expired credential cleanup", "component", "cleanup")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *CleanupService) runCleanup() {
	codesDeleted, err := s.otpCodes.DeleteExpired()
	if err != nil {
		slog.Error("error deleting expired one-time codes", "component", "cleanup", "error", err)
	} else if codesDeleted > 0 {
		slog.Info("deleted expired one-time codes", "component", "cleanup", "count", codesDeleted)
	}

	tokensDeleted, err := s.refreshTokens.DeleteExpired()
	if err != nil {
		slog.Error("error deleting expired refresh tokens", "component", "cleanup", "error", err)
	} else if tokensDeleted > 0 {
		slog.Info("deleted expired refresh tokens", "component", "cleanup", "count", tokensDeleted)
	}
}
