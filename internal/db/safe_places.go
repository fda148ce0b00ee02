package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/internal/models"
)

type SafePlaceRepository struct {
	db *DB
}

func NewSafePlaceRepository(db *DB) *SafePlaceRepository {
	return &SafePlaceRepository{db: db}
}

func (r *SafePlaceRepository) Create(userID, name, address string, latitude, longitude float64) (*models.SafePlace, error) {
	id, err := generateID("spl")
	if err != nil {
		return nil, fmt.Errorf("generating safe place ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO safe_places (id, user_id, name, address, latitude, longitude, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, name, address, latitude, longitude, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating safe place: %w", err)
	}

	return &models.SafePlace{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Address:   address,
		Latitude:  latitude,
		Longitude: longitude,
		CreatedAt: now,
	}, nil
}

func (r *SafePlaceRepository) FindByID(id string) (*models.SafePlace, error) {
	var p models.SafePlace
	var updatedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, user_id, name, address, latitude, longitude, created_at, updated_at FROM safe_places WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Address, &p.Latitude, &p.Longitude, &p.CreatedAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying safe place: %w", err)
	}

	p.UpdatedAt = nullTimeToPtr(updatedAt)

	return &p, nil
}

// List returns safe places newest first. When onlyUser is non-empty the
// result is restricted to that owner's places.
func (r *SafePlaceRepository) List(onlyUser string, limit int) ([]*models.SafePlace, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT id, user_id, name, address, latitude, longitude, created_at, updated_at FROM safe_places`
	var args []any
	if onlyUser != "" {
		query += ` WHERE user_id = ?`
		args = append(args, onlyUser)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying safe places: %w", err)
	}
	defer rows.Close()

	places := make([]*models.SafePlace, 0)
	for rows.Next() {
		var p models.SafePlace
		var updatedAt sql.NullTime

		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Address, &p.Latitude, &p.Longitude, &p.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning safe place: %w", err)
		}

		p.UpdatedAt = nullTimeToPtr(updatedAt)
		places = append(places, &p)
	}

	return places, rows.Err()
}

func (r *SafePlaceRepository) Update(place *models.SafePlace) error {
	now := time.Now().UTC()
	result, err := r.db.Exec(
		`UPDATE safe_places SET name = ?, address = ?, latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`,
		place.Name, place.Address, place.Latitude, place.Longitude, now, place.ID,
	)
	if err != nil {
		return fmt.Errorf("updating safe place: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return err
	}
	place.UpdatedAt = &now
	return nil
}

func (r *SafePlaceRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM safe_places WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting safe place: %w", err)
	}
	return checkRowsAffected(result)
}
