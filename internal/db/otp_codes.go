package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/internal/models"
)

type OTPRepository struct {
	db *DB
}

func NewOTPRepository(db *DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Create appends a new code row. Existing rows for the same target are never
// reused or touched, so several outstanding codes may coexist.
func (r *OTPRepository) Create(target, code, purpose string, expiresAt time.Time) (*models.OneTimeCode, error) {
	id, err := generateID("otp")
	if err != nil {
		return nil, fmt.Errorf("generating code ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO otp_codes (id, target, code, purpose, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, target, code, purpose, expiresAt.UTC(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating one-time code: %w", err)
	}

	return &models.OneTimeCode{
		ID:        id,
		Target:    target,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// FindValid matches on target + code + purpose, unused and unexpired only.
// Used, expired and absent codes are all reported as ErrNotFound so callers
// cannot tell the failure modes apart.
func (r *OTPRepository) FindValid(target, code, purpose string) (*models.OneTimeCode, error) {
	return r.findOne(
		`SELECT id, target, code, purpose, expires_at, used_at, created_at
		 FROM otp_codes
		 WHERE target = ? AND code = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT 1`,
		target, code, purpose, time.Now().UTC(),
	)
}

// FindValidByCode matches on code value alone. When unexpired, unused codes
// with the same value exist for different targets, the most recently created
// row wins; rowid breaks exact timestamp ties so the choice is deterministic.
func (r *OTPRepository) FindValidByCode(code, purpose string) (*models.OneTimeCode, error) {
	return r.findOne(
		`SELECT id, target, code, purpose, expires_at, used_at, created_at
		 FROM otp_codes
		 WHERE code = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT 1`,
		code, purpose, time.Now().UTC(),
	)
}

// MarkUsedIfUnused atomically flips used_at once. The second call for the
// same id reports false and changes nothing.
func (r *OTPRepository) MarkUsedIfUnused(id string) (bool, error) {
	result, err := r.db.Exec(`UPDATE otp_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("marking code used: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *OTPRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM otp_codes WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired codes: %w", err)
	}

	return result.RowsAffected()
}

func (r *OTPRepository) findOne(query string, args ...any) (*models.OneTimeCode, error) {
	var c models.OneTimeCode
	var usedAt sql.NullTime

	err := r.db.QueryRow(query, args...).Scan(&c.ID, &c.Target, &c.Code, &c.Purpose, &c.ExpiresAt, &usedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying one-time code: %w", err)
	}

	c.UsedAt = nullTimeToPtr(usedAt)

	return &c, nil
}
