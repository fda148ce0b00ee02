package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/internal/models"
)

type RefreshTokenRepository struct {
	db *DB
}

func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(sessionID, userID, tokenHash, createdByIP string, expiresAt time.Time) (*models.RefreshToken, error) {
	id, err := generateID("rft")
	if err != nil {
		return nil, fmt.Errorf("generating refresh token ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO refresh_tokens (id, session_id, user_id, token_hash, created_by_ip, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, userID, tokenHash, createdByIP, expiresAt.UTC(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh token: %w", err)
	}

	return &models.RefreshToken{
		ID:          id,
		SessionID:   sessionID,
		UserID:      userID,
		TokenHash:   tokenHash,
		CreatedByIP: createdByIP,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}, nil
}

func (r *RefreshTokenRepository) FindByHash(tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	var createdByIP sql.NullString
	var revokedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, session_id, user_id, token_hash, created_by_ip, expires_at, created_at, revoked_at FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.ID, &t.SessionID, &t.UserID, &t.TokenHash, &createdByIP, &t.ExpiresAt, &t.CreatedAt, &revokedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}

	t.CreatedByIP = createdByIP.String
	t.RevokedAt = nullTimeToPtr(revokedAt)

	return &t, nil
}

// Rotate consumes one refresh token and inserts its successor in a single
// transaction. The conditional revoke carries the single-use guarantee: if a
// concurrent redemption got there first, zero rows are affected and the whole
// rotation fails with ErrNotFound.
func (r *RefreshTokenRepository) Rotate(consumedTokenID string, newToken *models.RefreshToken) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting refresh token rotation transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(
		`UPDATE refresh_tokens
		 SET revoked_at = ?
		 WHERE id = ?
		   AND revoked_at IS NULL
		   AND expires_at > ?`,
		now,
		consumedTokenID,
		now,
	)
	if err != nil {
		return fmt.Errorf("revoking token during rotation: %w", err)
	}

	if err := checkRowsAffected(result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("checking refresh token rotation rows affected: %w", err)
	}

	newID, err := generateID("rft")
	if err != nil {
		return fmt.Errorf("generating rotated refresh token ID: %w", err)
	}
	newToken.ID = newID
	newToken.CreatedAt = now

	_, err = tx.Exec(
		`INSERT INTO refresh_tokens (id, session_id, user_id, token_hash, created_by_ip, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newToken.ID,
		newToken.SessionID,
		newToken.UserID,
		newToken.TokenHash,
		newToken.CreatedByIP,
		newToken.ExpiresAt.UTC(),
		now,
	)
	if err != nil {
		return fmt.Errorf("creating rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing refresh token rotation: %w", err)
	}

	return nil
}

// RevokeByHash marks the token revoked if it is not already. Returns the
// number of rows touched so logout can stay idempotent.
func (r *RefreshTokenRepository) RevokeByHash(tokenHash string) (int64, error) {
	result, err := r.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(),
		tokenHash,
	)
	if err != nil {
		return 0, fmt.Errorf("revoking refresh token: %w", err)
	}
	return result.RowsAffected()
}

func (r *RefreshTokenRepository) RevokeAllForSession(sessionID string) error {
	_, err := r.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE session_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("revoking session tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	return result.RowsAffected()
}
