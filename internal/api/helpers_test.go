package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"beacon/internal/auth"
	"beacon/internal/db"
	"beacon/internal/models"
	"beacon/internal/notify"
	"beacon/internal/ws"
)

const testJWTSecret = "test-secret-at-least-32-characters-long"

type testEnv struct {
	database      *db.DB
	users         *db.UserRepository
	pending       *db.PendingRegistrationRepository
	otpCodes      *db.OTPRepository
	sessions      *db.SessionRepository
	refreshTokens *db.RefreshTokenRepository
	contacts      *db.ContactRepository
	places        *db.SafePlaceRepository
	messages      *db.MessageRepository
	preferences   *db.PreferenceRepository

	jwtService *auth.JWTService
	hub        *ws.Hub

	auth     *AuthHandler
	userH    *UserHandler
	contactH *ContactHandler
	placeH   *SafePlaceHandler
	prefH    *PreferenceHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	env := &testEnv{
		database:      database,
		users:         db.NewUserRepository(database),
		pending:       db.NewPendingRegistrationRepository(database),
		otpCodes:      db.NewOTPRepository(database),
		sessions:      db.NewSessionRepository(database),
		refreshTokens: db.NewRefreshTokenRepository(database),
		contacts:      db.NewContactRepository(database),
		places:        db.NewSafePlaceRepository(database),
		messages:      db.NewMessageRepository(database),
		preferences:   db.NewPreferenceRepository(database),
	}

	env.jwtService = auth.NewJWTService(testJWTSecret, time.Hour, 24*time.Hour)
	env.hub = ws.NewHub(env.messages)

	ipResolver, err := NewClientIPResolver(nil)
	if err != nil {
		t.Fatalf("NewClientIPResolver() error = %v", err)
	}

	env.auth = NewAuthHandler(
		env.users,
		env.pending,
		env.otpCodes,
		env.sessions,
		env.refreshTokens,
		env.jwtService,
		auth.NewOTPService(5*time.Minute),
		notify.NewLogSender(),
		notify.NewSMSLogSender(),
		ipResolver,
		env.hub,
	)
	env.userH = NewUserHandler(env.users, env.hub, t.TempDir(), "http://localhost:8080")
	env.contactH = NewContactHandler(env.contacts)
	env.placeH = NewSafePlaceHandler(env.places)
	env.prefH = NewPreferenceHandler(env.preferences)

	return env
}

func (env *testEnv) createUser(t *testing.T, email, password string) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	user, err := env.users.Create("Test User", email, "", hash)
	if err != nil {
		t.Fatalf("UserRepository.Create() error = %v", err)
	}
	return user
}

// latestCode digs the newest one-time code for a target out of storage, the
// way a user would read it out of their inbox.
func (env *testEnv) latestCode(t *testing.T, target string) string {
	t.Helper()

	var code string
	err := env.database.QueryRow(
		`SELECT code FROM otp_codes WHERE target = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		target,
	).Scan(&code)
	if err != nil {
		t.Fatalf("reading issued code: %v", err)
	}
	return code
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func postJSONAs(t *testing.T, handler http.HandlerFunc, path, body string, id identity) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), identityKey, id))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func requestWithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func getByParamAs(t *testing.T, handler http.HandlerFunc, path, param, value string, caller identity) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, strings.Replace(path, "{"+param+"}", value, 1), nil)
	req = req.WithContext(context.WithValue(req.Context(), identityKey, caller))
	req = requestWithURLParam(req, param, value)
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func deleteAs(t *testing.T, handler http.HandlerFunc, path, id string, caller identity) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodDelete, strings.Replace(path, "{id}", id, 1), nil)
	req = req.WithContext(context.WithValue(req.Context(), identityKey, caller))
	req = requestWithURLParam(req, "id", id)
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func patchJSONAs(t *testing.T, handler http.HandlerFunc, path, id, body string, caller identity) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPatch, strings.Replace(path, "{id}", id, 1), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), identityKey, caller))
	req = requestWithURLParam(req, "id", id)
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeAuthResponse(t *testing.T, rr *httptest.ResponseRecorder) AuthResponse {
	t.Helper()

	var resp AuthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	return resp
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	return resp.Error.Code
}
