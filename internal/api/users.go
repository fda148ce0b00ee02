package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"beacon/internal/auth"
	"beacon/internal/avatar"
	"beacon/internal/db"
	"beacon/internal/models"
	"beacon/internal/ws"
)

const maxAvatarUploadBytes = 5 << 20

type UserHandler struct {
	users     *db.UserRepository
	hub       *ws.Hub
	avatarDir string
	baseURL   string
}

func NewUserHandler(users *db.UserRepository, hub *ws.Hub, avatarDir, baseURL string) *UserHandler {
	return &UserHandler{
		users:     users,
		hub:       hub,
		avatarDir: avatarDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

type UserResponse struct {
	*models.User
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

func (h *UserHandler) userResponse(user *models.User) UserResponse {
	resp := UserResponse{User: user}
	if user.AvatarPath != nil && *user.AvatarPath != "" {
		url := fmt.Sprintf("%s/uploads/avatars/%s", h.baseURL, filepath.Base(*user.AvatarPath))
		resp.AvatarURL = &url
	}
	return resp
}

// GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, h.userResponse(user))
}

// PATCH /api/v1/users/me
type UpdateUserRequest struct {
	FullName        *string `json:"fullName" validate:"omitempty,max=100"`
	Phone           *string `json:"phone" validate:"omitempty,max=20"`
	NewPassword     *string `json:"newPassword" validate:"omitempty,min=8,max=72"`
	CurrentPassword *string `json:"currentPassword" validate:"omitempty,max=72"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req UpdateUserRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	fields := make(map[string]any)

	if req.FullName != nil {
		name := sanitizeText(*req.FullName)
		if name == "" {
			badRequest(w, "fullname must not be empty")
			return
		}
		fields["full_name"] = name
	}

	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone != "" && !phoneRegex.MatchString(phone) {
			badRequest(w, "invalid phone format")
			return
		}
		fields["phone"] = phone
	}

	if req.NewPassword != nil {
		if req.CurrentPassword == nil {
			badRequest(w, "currentpassword is required to change password")
			return
		}

		user, err := h.users.FindByID(userID)
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "User not found")
			return
		}
		if err != nil {
			slog.Error("error finding user", "error", err)
			internalError(w)
			return
		}

		if !auth.CheckPassword(user.PasswordHash, *req.CurrentPassword) {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidCredentials, "Current password is incorrect")
			return
		}

		hash, err := auth.HashPassword(*req.NewPassword)
		if err != nil {
			slog.Error("error hashing password", "error", err)
			internalError(w)
			return
		}
		fields["password_hash"] = hash
	}

	if len(fields) > 0 {
		if err := h.users.Update(userID, fields); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				notFound(w, "User not found")
				return
			}
			slog.Error("error updating user", "error", err, "user_id", userID)
			internalError(w)
			return
		}
	}

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, h.userResponse(user))
}

// PUT /api/v1/users/me/avatar
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarUploadBytes)
	if err := r.ParseMultipartForm(maxAvatarUploadBytes); err != nil {
		badRequest(w, "Invalid multipart form or file too large")
		return
	}

	file, _, err := r.FormFile("avatar")
	if err != nil {
		badRequest(w, "avatar file is required")
		return
	}
	defer file.Close()

	img, err := avatar.Normalize(file, avatar.DefaultMaxEdge, avatar.DefaultQuality)
	if err != nil {
		badRequest(w, "Unsupported or corrupt image")
		return
	}

	// Timestamped filename so stale CDN/browser caches never serve the old
	// picture after a change.
	filename := fmt.Sprintf("%s_%d.jpg", userID, time.Now().UnixMilli())
	if err := os.MkdirAll(h.avatarDir, 0o755); err != nil {
		slog.Error("error creating avatar directory", "error", err)
		internalError(w)
		return
	}
	if err := os.WriteFile(filepath.Join(h.avatarDir, filename), img.Data, 0o644); err != nil {
		slog.Error("error writing avatar file", "error", err)
		internalError(w)
		return
	}

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}
	previous := user.AvatarPath

	if err := h.users.Update(userID, map[string]any{"avatar_path": filename}); err != nil {
		slog.Error("error updating avatar path", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	if previous != nil && *previous != "" && *previous != filename {
		if err := os.Remove(filepath.Join(h.avatarDir, filepath.Base(*previous))); err != nil && !os.IsNotExist(err) {
			slog.Warn("error removing previous avatar", "error", err, "user_id", userID)
		}
	}

	user.AvatarPath = &filename
	writeJSON(w, http.StatusOK, h.userResponse(user))
}

// DELETE /api/v1/users/me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	// Sessions, refresh tokens, contacts and the rest are removed by
	// foreign key cascade.
	if err := h.users.Delete(userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "User not found")
			return
		}
		slog.Error("error deleting user", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	if user.AvatarPath != nil && *user.AvatarPath != "" {
		if err := os.Remove(filepath.Join(h.avatarDir, filepath.Base(*user.AvatarPath))); err != nil && !os.IsNotExist(err) {
			slog.Warn("error removing avatar file", "error", err, "user_id", userID)
		}
	}

	if client := h.hub.GetClient(userID); client != nil {
		client.Close()
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}
