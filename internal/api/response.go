package api

import (
	"encoding/json"
	"net/http"
)

const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeMissingCode        = "missing_code"
	ErrCodeInvalidOrExpired   = "invalid_or_expired"
	ErrCodeInvalidOTPTarget   = "invalid_otp_target"
	ErrCodePendingNotFound    = "pending_registration_not_found"
	ErrCodeInvalidPendingData = "invalid_pending_registration_data"
	ErrCodeMissingRefresh     = "missing_refresh_token"
	ErrCodeRefreshInvalid     = "refresh_token_invalid"
	ErrCodeRefreshRevoked     = "refresh_token_revoked"
	ErrCodeRefreshExpired     = "refresh_token_expired"
	ErrCodeSessionRevoked     = "session_revoked"
	ErrCodeUserNotFound       = "user_not_found"
	ErrCodeEmailSendFailed    = "email_send_failed"
	ErrCodeMisconfigured      = "server_misconfigured"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeConflict           = "conflict"
	ErrCodeDuplicateContact   = "duplicate_contact"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeBadTokenPayload    = "invalid_token_payload"
	ErrCodeInternal           = "internal_error"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func conflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "An internal error occurred")
}

func misconfigured(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeMisconfigured, "Server is misconfigured")
}
