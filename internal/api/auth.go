package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"beacon/internal/auth"
	"beacon/internal/db"
	"beacon/internal/models"
	"beacon/internal/notify"
	"beacon/internal/ws"
)

var phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

type AuthHandler struct {
	users         *db.UserRepository
	pending       *db.PendingRegistrationRepository
	otpCodes      *db.OTPRepository
	sessions      *db.SessionRepository
	refreshTokens *db.RefreshTokenRepository
	jwtService    *auth.JWTService
	otpService    *auth.OTPService
	emailSender   notify.Sender
	smsSender     notify.Sender
	ipResolver    *ClientIPResolver
	hub           *ws.Hub
}

func NewAuthHandler(
	users *db.UserRepository,
	pending *db.PendingRegistrationRepository,
	otpCodes *db.OTPRepository,
	sessions *db.SessionRepository,
	refreshTokens *db.RefreshTokenRepository,
	jwtService *auth.JWTService,
	otpService *auth.OTPService,
	emailSender notify.Sender,
	smsSender notify.Sender,
	ipResolver *ClientIPResolver,
	hub *ws.Hub,
) *AuthHandler {
	return &AuthHandler{
		users:         users,
		pending:       pending,
		otpCodes:      otpCodes,
		sessions:      sessions,
		refreshTokens: refreshTokens,
		jwtService:    jwtService,
		otpService:    otpService,
		emailSender:   emailSender,
		smsSender:     smsSender,
		ipResolver:    ipResolver,
		hub:           hub,
	}
}

// POST /api/v1/auth/register
//
// Older clients send name or firstName/lastName instead of fullName; the
// first non-empty of fullName, name, firstName+lastName wins.
type RegisterRequest struct {
	FullName  string `json:"fullName" validate:"omitempty,max=100"`
	Name      string `json:"name" validate:"omitempty,max=100"`
	FirstName string `json:"firstName" validate:"omitempty,max=50"`
	LastName  string `json:"lastName" validate:"omitempty,max=50"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"required,max=20"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type RegisterResponse struct {
	Message    string `json:"message"`
	PendingID  string `json:"pendingId"`
	ExpiresAt  string `json:"expiresAt"`
	PreviewRef string `json:"previewRef,omitempty"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	fullName := resolveFullName(req)
	if fullName == "" {
		badRequest(w, "fullname is required")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := strings.TrimSpace(req.Phone)
	if !phoneRegex.MatchString(phone) {
		badRequest(w, "invalid phone format")
		return
	}

	if _, err := h.users.FindByEmail(email); err == nil {
		conflict(w, "Account already registered")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		slog.Error("error checking existing account", "error", err)
		internalError(w)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		internalError(w)
		return
	}

	// Re-registering before verification replaces the earlier submission,
	// so only the latest code and data can complete the signup.
	pending, err := h.pending.Upsert(fullName, email, phone, passwordHash)
	if err != nil {
		slog.Error("error storing pending registration", "error", err)
		internalError(w)
		return
	}

	code, err := h.otpService.GenerateCode()
	if err != nil {
		slog.Error("error generating verification code", "error", err)
		internalError(w)
		return
	}

	expiresAt := h.otpService.ExpiresAt()
	if _, err := h.otpCodes.Create(email, code, auth.PurposeRegistration, expiresAt); err != nil {
		slog.Error("error storing verification code", "error", err)
		internalError(w)
		return
	}

	receipt, err := h.emailSender.Send(r.Context(), email,
		"Your verification code",
		verificationBody(code, h.otpService.TTL()))
	if err != nil {
		slog.Error("error sending verification email", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeEmailSendFailed, "Could not send verification email")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message:    "Verification code sent",
		PendingID:  pending.ID,
		ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
		PreviewRef: receipt.PreviewRef,
	})
}

func resolveFullName(req RegisterRequest) string {
	if name := sanitizeText(req.FullName); name != "" {
		return name
	}
	if name := sanitizeText(req.Name); name != "" {
		return name
	}
	return sanitizeText(strings.TrimSpace(req.FirstName + " " + req.LastName))
}

func verificationBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(ttl.Minutes()))
}

// POST /api/v1/auth/verify-registration
type VerifyRegistrationRequest struct {
	Code string `json:"code"`
}

// Verification confirms the account; tokens come from a subsequent login.
type VerifyRegistrationResponse struct {
	OK     bool   `json:"ok"`
	UserID string `json:"userId"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    string       `json:"expiresAt"`
}

func (h *AuthHandler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req VerifyRegistrationRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingCode, "Verification code is required")
		return
	}

	otp, err := h.otpCodes.FindValidByCode(code, auth.PurposeRegistration)
	if errors.Is(err, db.ErrNotFound) {
		// Unknown, expired and already-used codes are indistinguishable on
		// the wire.
		writeError(w, http.StatusBadRequest, ErrCodeInvalidOrExpired, "Code is invalid or has expired")
		return
	}
	if err != nil {
		slog.Error("error finding verification code", "error", err)
		internalError(w)
		return
	}

	if !strings.Contains(otp.Target, "@") {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidOTPTarget, "Code was not issued for an email address")
		return
	}

	// The code is consumed only after the user row exists. A verification
	// that fails before that point leaves the code unused so the caller
	// can retry.
	pending, err := h.pending.FindByEmail(otp.Target)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusBadRequest, ErrCodePendingNotFound, "No pending registration for this code")
		return
	}
	if err != nil {
		slog.Error("error finding pending registration", "error", err)
		internalError(w)
		return
	}

	if pending.FullName == "" || pending.Email == "" || pending.PasswordHash == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidPendingData, "Pending registration data is incomplete")
		return
	}

	user, err := h.users.Create(pending.FullName, pending.Email, pending.Phone, pending.PasswordHash)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			conflict(w, "Account already registered")
			return
		}
		slog.Error("error creating user", "error", err)
		internalError(w)
		return
	}

	consumed, err := h.otpCodes.MarkUsedIfUnused(otp.ID)
	if err != nil {
		slog.Error("error consuming verification code", "error", err)
		internalError(w)
		return
	}
	if !consumed {
		// Lost a concurrent race on the same code.
		writeError(w, http.StatusBadRequest, ErrCodeInvalidOrExpired, "Code is invalid or has expired")
		return
	}

	if err := h.pending.Delete(pending.ID); err != nil {
		slog.Warn("error deleting pending registration", "error", err, "email", pending.Email)
	}

	writeJSON(w, http.StatusOK, VerifyRegistrationResponse{OK: true, UserID: user.ID})
}

// POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Unknown account and wrong password produce the same response so the
	// endpoint cannot be used to enumerate accounts.
	user, err := h.users.FindByEmail(email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidCredentials, "Invalid email or password")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidCredentials, "Invalid email or password")
		return
	}

	authResponse, err := h.issueSession(user, r)
	if err != nil {
		slog.Error("error issuing auth tokens", "error", err, "user_id", user.ID)
		if errors.Is(err, auth.ErrSecretMissing) {
			misconfigured(w)
			return
		}
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, authResponse)
}

// POST /api/v1/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    string       `json:"expiresAt"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingRefresh, "Refresh token is required")
		return
	}

	tokenHash := auth.HashRefreshToken(req.RefreshToken)
	refreshToken, err := h.refreshTokens.FindByHash(tokenHash)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, ErrCodeRefreshInvalid, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error finding refresh token", "error", err)
		internalError(w)
		return
	}

	if refreshToken.Revoked() {
		writeError(w, http.StatusUnauthorized, ErrCodeRefreshRevoked, "Refresh token has been revoked")
		return
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, ErrCodeRefreshExpired, "Refresh token has expired")
		return
	}

	session, err := h.sessions.FindByID(refreshToken.SessionID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, ErrCodeRefreshInvalid, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error finding session", "error", err)
		internalError(w)
		return
	}

	if !session.Active() {
		writeError(w, http.StatusUnauthorized, ErrCodeSessionRevoked, "Session has been revoked")
		return
	}

	user, err := h.users.FindByID(refreshToken.UserID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, ErrCodeUserNotFound, "User no longer exists")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	rawToken, newHash, err := h.jwtService.NewRefreshToken()
	if err != nil {
		slog.Error("error generating refresh token", "error", err)
		internalError(w)
		return
	}

	successor := &models.RefreshToken{
		SessionID:   session.ID,
		UserID:      user.ID,
		TokenHash:   newHash,
		CreatedByIP: h.ipResolver.Resolve(r),
		ExpiresAt:   h.jwtService.RefreshTokenExpiry(),
	}

	if err := h.refreshTokens.Rotate(refreshToken.ID, successor); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Lost a concurrent race on the same token: someone else
			// already rotated it.
			writeError(w, http.StatusUnauthorized, ErrCodeRefreshRevoked, "Refresh token has already been used")
			return
		}
		slog.Error("error rotating refresh token", "error", err)
		internalError(w)
		return
	}

	accessToken, expiry, err := h.jwtService.GenerateAccessToken(user, session.ID)
	if err != nil {
		slog.Error("error generating access token", "error", err, "user_id", user.ID)
		if errors.Is(err, auth.ErrSecretMissing) {
			misconfigured(w)
			return
		}
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: rawToken,
		ExpiresAt:    expiry.UTC().Format(time.RFC3339),
	})
}

// POST /api/v1/auth/logout
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingRefresh, "Refresh token is required")
		return
	}

	// Revoking an unknown or already-revoked token still logs out cleanly.
	if _, err := h.refreshTokens.RevokeByHash(auth.HashRefreshToken(req.RefreshToken)); err != nil {
		slog.Error("error revoking refresh token", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// POST /api/v1/auth/send-otp
type SendOTPRequest struct {
	Target  string `json:"target" validate:"required,max=254"`
	Purpose string `json:"purpose" validate:"omitempty,max=32"`
}

func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = auth.PurposeLogin
	}
	if !auth.ValidPurpose(purpose) {
		badRequest(w, "invalid purpose")
		return
	}

	target := strings.TrimSpace(req.Target)
	sender := h.smsSender
	if strings.Contains(target, "@") {
		target = strings.ToLower(target)
		if err := requestValidator.Var(target, "email,max=254"); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidOTPTarget, "Target must be an email address or phone number")
			return
		}
		sender = h.emailSender
	} else if !phoneRegex.MatchString(target) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidOTPTarget, "Target must be an email address or phone number")
		return
	}

	code, err := h.otpService.GenerateCode()
	if err != nil {
		slog.Error("error generating one-time code", "error", err)
		internalError(w)
		return
	}

	expiresAt := h.otpService.ExpiresAt()
	if _, err := h.otpCodes.Create(target, code, purpose, expiresAt); err != nil {
		slog.Error("error storing one-time code", "error", err)
		internalError(w)
		return
	}

	receipt, err := sender.Send(r.Context(), target, "Your one-time code",
		verificationBody(code, h.otpService.TTL()))
	if err != nil {
		slog.Error("error sending one-time code", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeEmailSendFailed, "Could not send one-time code")
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Message:    "One-time code sent",
		ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
		PreviewRef: receipt.PreviewRef,
	})
}

// GET /api/v1/auth/sessions
type SessionInfo struct {
	*models.Session
	Current bool `json:"current"`
}

func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	if caller.UserID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	sessions, err := h.sessions.ListByUser(caller.UserID)
	if err != nil {
		slog.Error("error listing sessions", "error", err, "user_id", caller.UserID)
		internalError(w)
		return
	}

	result := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, SessionInfo{
			Session: s,
			Current: s.ID == caller.SessionID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": result})
}

// POST /api/v1/auth/sessions/revoke
type RevokeSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	if caller.UserID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req RevokeSessionRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	session, err := h.sessions.FindByID(req.SessionID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "Session not found")
		return
	}
	if err != nil {
		slog.Error("error finding session", "error", err)
		internalError(w)
		return
	}

	if session.UserID != caller.UserID {
		forbidden(w, "Session belongs to another user")
		return
	}

	if err := h.sessions.Revoke(session.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
		slog.Error("error revoking session", "error", err, "session_id", session.ID)
		internalError(w)
		return
	}

	if err := h.refreshTokens.RevokeAllForSession(session.ID); err != nil {
		slog.Error("error revoking session refresh tokens", "error", err, "session_id", session.ID)
		internalError(w)
		return
	}

	// Revoking your own session drops the live socket too.
	if session.ID == caller.SessionID {
		if client := h.hub.GetClient(caller.UserID); client != nil {
			client.Close()
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}

func (h *AuthHandler) issueSession(user *models.User, r *http.Request) (*AuthResponse, error) {
	session, err := h.sessions.Create(user.ID, r.UserAgent(), h.ipResolver.Resolve(r))
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	accessToken, expiry, err := h.jwtService.GenerateAccessToken(user, session.ID)
	if err != nil {
		return nil, err
	}

	rawToken, tokenHash, err := h.jwtService.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	if _, err := h.refreshTokens.Create(session.ID, user.ID, tokenHash, session.IP, h.jwtService.RefreshTokenExpiry()); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: rawToken,
		ExpiresAt:    expiry.UTC().Format(time.RFC3339),
	}, nil
}
