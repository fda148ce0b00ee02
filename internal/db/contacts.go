package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beacon/internal/models"
)

type ContactRepository struct {
	db *DB
}

func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Create(userID, fullName, phone string, relation *string) (*models.Contact, error) {
	id, err := generateID("cnt")
	if err != nil {
		return nil, fmt.Errorf("generating contact ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO contacts (id, user_id, full_name, phone, relation, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, fullName, phone, relation, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating contact: %w", err)
	}

	return &models.Contact{
		ID:        id,
		UserID:    userID,
		FullName:  fullName,
		Phone:     phone,
		Relation:  relation,
		CreatedAt: now,
	}, nil
}

func (r *ContactRepository) FindByID(id string) (*models.Contact, error) {
	var c models.Contact
	var relation sql.NullString
	var updatedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, user_id, full_name, phone, relation, created_at, updated_at FROM contacts WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.UserID, &c.FullName, &c.Phone, &relation, &c.CreatedAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying contact: %w", err)
	}

	if relation.Valid {
		c.Relation = &relation.String
	}
	c.UpdatedAt = nullTimeToPtr(updatedAt)

	return &c, nil
}

func (r *ContactRepository) ListByUser(userID string) ([]*models.Contact, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, full_name, phone, relation, created_at, updated_at FROM contacts WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]*models.Contact, 0)
	for rows.Next() {
		var c models.Contact
		var relation sql.NullString
		var updatedAt sql.NullTime

		if err := rows.Scan(&c.ID, &c.UserID, &c.FullName, &c.Phone, &relation, &c.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}

		if relation.Valid {
			c.Relation = &relation.String
		}
		c.UpdatedAt = nullTimeToPtr(updatedAt)
		contacts = append(contacts, &c)
	}

	return contacts, rows.Err()
}

func (r *ContactRepository) Update(id string, fullName, phone *string, relation *string, clearRelation bool) (*models.Contact, error) {
	current, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}

	if fullName != nil {
		current.FullName = *fullName
	}
	if phone != nil {
		current.Phone = *phone
	}
	if clearRelation {
		current.Relation = nil
	} else if relation != nil {
		current.Relation = relation
	}

	now := time.Now().UTC()
	result, err := r.db.Exec(
		`UPDATE contacts SET full_name = ?, phone = ?, relation = ?, updated_at = ? WHERE id = ?`,
		current.FullName, current.Phone, current.Relation, now, id,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("updating contact: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}

	current.UpdatedAt = &now
	return current, nil
}

func (r *ContactRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting contact: %w", err)
	}
	return checkRowsAffected(result)
}
