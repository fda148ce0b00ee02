package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/internal/models"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// userUpdateAllowList names the only columns a profile update may touch.
// Anything else (id, email, role, created_at) is rejected outright.
var userUpdateAllowList = map[string]bool{
	"full_name":     true,
	"phone":         true,
	"avatar_path":   true,
	"password_hash": true,
}

func (r *UserRepository) Create(fullName, email, phone, passwordHash string) (*models.User, error) {
	id, err := generateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO users (id, full_name, email, phone, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, 'user', ?)`,
		id, fullName, email, phone, passwordHash, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return &models.User{
		ID:           id,
		FullName:     fullName,
		Email:        email,
		Phone:        phone,
		PasswordHash: passwordHash,
		Role:         "user",
		CreatedAt:    now,
	}, nil
}

func (r *UserRepository) FindByID(id string) (*models.User, error) {
	return r.findOne(`SELECT id, full_name, email, phone, password_hash, role, avatar_path, created_at, updated_at FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByEmail(email string) (*models.User, error) {
	return r.findOne(`SELECT id, full_name, email, phone, password_hash, role, avatar_path, created_at, updated_at FROM users WHERE email = ?`, email)
}

func (r *UserRepository) FindByPhone(phone string) (*models.User, error) {
	return r.findOne(`SELECT id, full_name, email, phone, password_hash, role, avatar_path, created_at, updated_at FROM users WHERE phone = ?`, phone)
}

// Update writes the given columns for one user. Columns outside the allow
// list are rejected with ErrDisallowedField before anything is written.
func (r *UserRepository) Update(id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	setClause := ""
	args := make([]any, 0, len(fields)+2)
	for column, value := range fields {
		if !userUpdateAllowList[column] {
			return fmt.Errorf("updating user column %q: %w", column, ErrDisallowedField)
		}
		if setClause != "" {
			setClause += ", "
		}
		setClause += column + " = ?"
		args = append(args, value)
	}
	args = append(args, time.Now().UTC(), id)

	result, err := r.db.Exec(`UPDATE users SET `+setClause+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating user: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) findOne(query string, args ...any) (*models.User, error) {
	var u models.User
	var phone sql.NullString
	var updatedAt sql.NullTime

	err := r.db.QueryRow(query, args...).Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&phone,
		&u.PasswordHash,
		&u.Role,
		&u.AvatarPath,
		&u.CreatedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.Phone = phone.String
	u.UpdatedAt = nullTimeToPtr(updatedAt)

	return &u, nil
}
