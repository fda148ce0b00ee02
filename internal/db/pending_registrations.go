package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/internal/models"
)

type PendingRegistrationRepository struct {
	db *DB
}

func NewPendingRegistrationRepository(db *DB) *PendingRegistrationRepository {
	return &PendingRegistrationRepository{db: db}
}

// Upsert stores a pending registration keyed by email. A resubmitted signup
// for the same address replaces the earlier row, so at most one pending
// registration exists per email.
func (r *PendingRegistrationRepository) Upsert(fullName, email, phone, passwordHash string) (*models.PendingRegistration, error) {
	id, err := generateID("pnd")
	if err != nil {
		return nil, fmt.Errorf("generating pending registration ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO pending_registrations (id, full_name, email, phone, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		   id = excluded.id,
		   full_name = excluded.full_name,
		   phone = excluded.phone,
		   password_hash = excluded.password_hash,
		   created_at = excluded.created_at`,
		id, fullName, email, phone, passwordHash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("storing pending registration: %w", err)
	}

	return &models.PendingRegistration{
		ID:           id,
		FullName:     fullName,
		Email:        email,
		Phone:        phone,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

func (r *PendingRegistrationRepository) FindByEmail(email string) (*models.PendingRegistration, error) {
	var p models.PendingRegistration

	err := r.db.QueryRow(
		`SELECT id, full_name, email, phone, password_hash, created_at FROM pending_registrations WHERE email = ?`,
		email,
	).Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &p.PasswordHash, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending registration: %w", err)
	}

	return &p, nil
}

func (r *PendingRegistrationRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM pending_registrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting pending registration: %w", err)
	}
	return checkRowsAffected(result)
}
