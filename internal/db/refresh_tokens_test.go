package db

import (
	"errors"
	"testing"
	"time"

	"beacon/internal/models"
)

func seedSessionWithToken(t *testing.T, database *DB, hash string) (*models.Session, *models.RefreshToken) {
	t.Helper()

	userID := createTestUser(t, database, "alice@example.com")

	session, err := NewSessionRepository(database).Create(userID, "test-agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("SessionRepository.Create() error = %v", err)
	}

	token, err := NewRefreshTokenRepository(database).Create(session.ID, userID, hash, "127.0.0.1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RefreshTokenRepository.Create() error = %v", err)
	}

	return session, token
}

func TestRotateConsumesOldTokenAndInsertsSuccessor(t *testing.T) {
	database := openTestDB(t)
	repo := NewRefreshTokenRepository(database)
	session, token := seedSessionWithToken(t, database, "hash-1")

	successor := &models.RefreshToken{
		SessionID: session.ID,
		UserID:    token.UserID,
		TokenHash: "hash-2",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := repo.Rotate(token.ID, successor); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if successor.ID == "" {
		t.Fatal("Rotate() did not assign an id to the successor")
	}

	old, err := repo.FindByHash("hash-1")
	if err != nil {
		t.Fatalf("FindByHash(old) error = %v", err)
	}
	if !old.Revoked() {
		t.Fatal("old token not revoked after rotation")
	}

	fresh, err := repo.FindByHash("hash-2")
	if err != nil {
		t.Fatalf("FindByHash(new) error = %v", err)
	}
	if fresh.Revoked() {
		t.Fatal("successor token should not be revoked")
	}
	if fresh.SessionID != session.ID {
		t.Fatalf("successor session = %q, want %q", fresh.SessionID, session.ID)
	}
}

func TestRotateRejectsSecondRedemption(t *testing.T) {
	database := openTestDB(t)
	repo := NewRefreshTokenRepository(database)
	session, token := seedSessionWithToken(t, database, "hash-1")

	first := &models.RefreshToken{SessionID: session.ID, UserID: token.UserID, TokenHash: "hash-2", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(token.ID, first); err != nil {
		t.Fatalf("first Rotate() error = %v", err)
	}

	second := &models.RefreshToken{SessionID: session.ID, UserID: token.UserID, TokenHash: "hash-3", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(token.ID, second); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Rotate() error = %v, want ErrNotFound", err)
	}

	// The losing rotation must not leave its successor behind.
	if _, err := repo.FindByHash("hash-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByHash(loser successor) error = %v, want ErrNotFound", err)
	}
}

func TestRotateRejectsExpiredToken(t *testing.T) {
	database := openTestDB(t)
	repo := NewRefreshTokenRepository(database)
	session, _ := seedSessionWithToken(t, database, "hash-live")

	expired, err := repo.Create(session.ID, session.UserID, "hash-expired", "127.0.0.1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	successor := &models.RefreshToken{SessionID: session.ID, UserID: session.UserID, TokenHash: "hash-next", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Rotate(expired.ID, successor); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rotate(expired) error = %v, want ErrNotFound", err)
	}
}

func TestRevokeByHashIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	repo := NewRefreshTokenRepository(database)
	seedSessionWithToken(t, database, "hash-1")

	revoked, err := repo.RevokeByHash("hash-1")
	if err != nil {
		t.Fatalf("RevokeByHash() error = %v", err)
	}
	if revoked != 1 {
		t.Fatalf("RevokeByHash() = %d, want 1", revoked)
	}

	revoked, err = repo.RevokeByHash("hash-1")
	if err != nil {
		t.Fatalf("second RevokeByHash() error = %v", err)
	}
	if revoked != 0 {
		t.Fatalf("second RevokeByHash() = %d, want 0", revoked)
	}

	if _, err := repo.RevokeByHash("no-such-hash"); err != nil {
		t.Fatalf("RevokeByHash(unknown) error = %v", err)
	}
}

func TestRevokeAllForSession(t *testing.T) {
	database := openTestDB(t)
	repo := NewRefreshTokenRepository(database)
	session, _ := seedSessionWithToken(t, database, "hash-1")

	if _, err := repo.Create(session.ID, session.UserID, "hash-2", "127.0.0.1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.RevokeAllForSession(session.ID); err != nil {
		t.Fatalf("RevokeAllForSession() error = %v", err)
	}

	for _, hash := range []string{"hash-1", "hash-2"} {
		token, err := repo.FindByHash(hash)
		if err != nil {
			t.Fatalf("FindByHash(%q) error = %v", hash, err)
		}
		if !token.Revoked() {
			t.Fatalf("token %q not revoked", hash)
		}
	}
}
