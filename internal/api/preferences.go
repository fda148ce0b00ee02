package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"beacon/internal/db"
)

type PreferenceHandler struct {
	preferences *db.PreferenceRepository
}

func NewPreferenceHandler(preferences *db.PreferenceRepository) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences}
}

// GET /api/v1/users/me/prefs
func (h *PreferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	prefs, err := h.preferences.ListByUser(userID)
	if err != nil {
		slog.Error("error listing preferences", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

// POST /api/v1/users/me/prefs
//
// Value is stored as submitted; the server does not interpret it.
type UpsertPreferenceRequest struct {
	Key   string          `json:"key" validate:"required,max=64"`
	Value json.RawMessage `json:"value" validate:"required"`
}

func (h *PreferenceHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req UpsertPreferenceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	pref, err := h.preferences.Upsert(userID, req.Key, req.Value)
	if err != nil {
		slog.Error("error storing preference", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, pref)
}

// DELETE /api/v1/users/me/prefs/{key}
func (h *PreferenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	if err := h.preferences.Delete(userID, chi.URLParam(r, "key")); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "Preference not found")
			return
		}
		slog.Error("error deleting preference", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Preference deleted"})
}
