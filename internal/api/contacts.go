package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"beacon/internal/db"
	"beacon/internal/models"
)

type ContactHandler struct {
	contacts *db.ContactRepository
}

func NewContactHandler(contacts *db.ContactRepository) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// POST /api/v1/contacts
type CreateContactRequest struct {
	FullName string  `json:"fullName" validate:"required,max=100"`
	Phone    string  `json:"phone" validate:"required,max=20"`
	Relation *string `json:"relation" validate:"omitempty,max=50"`
}

func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req CreateContactRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	fullName := sanitizeText(req.FullName)
	phone := strings.TrimSpace(req.Phone)
	if fullName == "" {
		badRequest(w, "fullname must not be empty")
		return
	}
	if !phoneRegex.MatchString(phone) {
		badRequest(w, "invalid phone format")
		return
	}

	var relation *string
	if req.Relation != nil {
		if v := sanitizeText(*req.Relation); v != "" {
			relation = &v
		}
	}

	contact, err := h.contacts.Create(userID, fullName, phone, relation)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, ErrCodeDuplicateContact, "A contact with this phone number already exists")
			return
		}
		slog.Error("error creating contact", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusCreated, contact)
}

// GET /api/v1/contacts
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	contacts, err := h.contacts.ListByUser(userID)
	if err != nil {
		slog.Error("error listing contacts", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

// GET /api/v1/contacts/{id}
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	contact, ok := h.ownedContact(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, contact)
}

// PATCH /api/v1/contacts/{id}
type UpdateContactRequest struct {
	FullName *string `json:"fullName" validate:"omitempty,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
	Relation *string `json:"relation" validate:"omitempty,max=50"`
}

func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	contact, ok := h.ownedContact(w, r)
	if !ok {
		return
	}

	var req UpdateContactRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	var fullName, phone, relation *string
	clearRelation := false

	if req.FullName != nil {
		v := sanitizeText(*req.FullName)
		if v == "" {
			badRequest(w, "fullname must not be empty")
			return
		}
		fullName = &v
	}
	if req.Phone != nil {
		v := strings.TrimSpace(*req.Phone)
		if !phoneRegex.MatchString(v) {
			badRequest(w, "invalid phone format")
			return
		}
		phone = &v
	}
	if req.Relation != nil {
		if v := sanitizeText(*req.Relation); v != "" {
			relation = &v
		} else {
			clearRelation = true
		}
	}

	updated, err := h.contacts.Update(contact.ID, fullName, phone, relation, clearRelation)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, ErrCodeDuplicateContact, "A contact with this phone number already exists")
			return
		}
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Contact not found")
			return
		}
		slog.Error("error updating contact", "error", err, "contact_id", contact.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DELETE /api/v1/contacts/{id}
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	contact, ok := h.ownedContact(w, r)
	if !ok {
		return
	}

	if err := h.contacts.Delete(contact.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Contact not found")
			return
		}
		slog.Error("error deleting contact", "error", err, "contact_id", contact.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Contact deleted"})
}

// ownedContact loads the contact from the URL and enforces ownership. It
// writes the error response itself when the second return value is false.
func (h *ContactHandler) ownedContact(w http.ResponseWriter, r *http.Request) (*models.Contact, bool) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return nil, false
	}

	contact, err := h.contacts.FindByID(chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Contact not found")
		return nil, false
	}
	if err != nil {
		slog.Error("error finding contact", "error", err)
		internalError(w)
		return nil, false
	}

	if contact.UserID != userID {
		forbidden(w, "Contact belongs to another user")
		return nil, false
	}

	return contact, true
}
