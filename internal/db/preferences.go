package db

import (
	"fmt"
	"time"

	"beacon/internal/models"
)

type PreferenceRepository struct {
	db *DB
}

func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Upsert writes the preference, replacing any earlier value for the same
// user and key.
func (r *PreferenceRepository) Upsert(userID, key string, value []byte) (*models.Preference, error) {
	now := time.Now().UTC()

	_, err := r.db.Exec(
		`INSERT INTO preferences (user_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		userID, key, string(value), now,
	)
	if err != nil {
		return nil, fmt.Errorf("storing preference: %w", err)
	}

	return &models.Preference{
		UserID:    userID,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}, nil
}

func (r *PreferenceRepository) ListByUser(userID string) ([]*models.Preference, error) {
	rows, err := r.db.Query(
		`SELECT user_id, key, value, updated_at FROM preferences WHERE user_id = ? ORDER BY key`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]*models.Preference, 0)
	for rows.Next() {
		var p models.Preference
		var value string

		if err := rows.Scan(&p.UserID, &p.Key, &value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning preference: %w", err)
		}
		p.Value = []byte(value)
		prefs = append(prefs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating preferences: %w", err)
	}

	return prefs, nil
}

func (r *PreferenceRepository) Delete(userID, key string) error {
	result, err := r.db.Exec(
		`DELETE FROM preferences WHERE user_id = ? AND key = ?`,
		userID, key,
	)
	if err != nil {
		return fmt.Errorf("deleting preference: %w", err)
	}
	return checkRowsAffected(result)
}
