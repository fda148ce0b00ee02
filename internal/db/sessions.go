package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"beacon/internal/models"
)

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create records one login instance. The id doubles as the jti claim of
// access tokens minted against this session.
func (r *SessionRepository) Create(userID, userAgent, ip string) (*models.Session, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, user_id, user_agent, ip, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, userAgent, ip, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &models.Session{
		ID:        id,
		UserID:    userID,
		UserAgent: userAgent,
		IP:        ip,
		CreatedAt: now,
	}, nil
}

func (r *SessionRepository) FindByID(id string) (*models.Session, error) {
	var s models.Session
	var userAgent, ip sql.NullString
	var revokedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, user_id, user_agent, ip, created_at, revoked_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.UserID, &userAgent, &ip, &s.CreatedAt, &revokedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	s.UserAgent = userAgent.String
	s.IP = ip.String
	s.RevokedAt = nullTimeToPtr(revokedAt)

	return &s, nil
}

func (r *SessionRepository) ListByUser(userID string) ([]*models.Session, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, user_agent, ip, created_at, revoked_at FROM sessions WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		var s models.Session
		var userAgent, ip sql.NullString
		var revokedAt sql.NullTime

		if err := rows.Scan(&s.ID, &s.UserID, &userAgent, &ip, &s.CreatedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		s.UserAgent = userAgent.String
		s.IP = ip.String
		s.RevokedAt = nullTimeToPtr(revokedAt)
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// Revoke sets revoked_at once. A session that is already revoked stays
// revoked; there is no way back.
func (r *SessionRepository) Revoke(id string) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return checkRowsAffected(result)
}
