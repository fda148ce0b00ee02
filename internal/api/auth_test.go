package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"beacon/internal/auth"
)

func decodeRegisterResponse(t *testing.T, rr *httptest.ResponseRecorder) RegisterResponse {
	t.Helper()

	var resp RegisterResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	return resp
}

func decodeVerifyResponse(t *testing.T, rr *httptest.ResponseRecorder) VerifyRegistrationResponse {
	t.Helper()

	var resp VerifyRegistrationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	return resp
}

func TestRegistrationFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.Register, "/api/v1/auth/register",
		`{"fullName":"Alice Cooper","email":"alice@example.com","phone":"+4791234567","password":"password123"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body=%q", rr.Code, rr.Body.String())
	}

	registered := decodeRegisterResponse(t, rr)
	if registered.PendingID == "" {
		t.Fatal("register response missing pendingId")
	}
	pending, err := env.pending.FindByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if registered.PendingID != pending.ID {
		t.Fatalf("pendingId = %q, want %q", registered.PendingID, pending.ID)
	}

	// No account yet: the data is parked until the code comes back.
	if _, err := env.users.FindByEmail("alice@example.com"); err == nil {
		t.Fatal("account exists before verification")
	}

	code := env.latestCode(t, "alice@example.com")
	rr = postJSON(t, env.auth.VerifyRegistration, "/api/v1/auth/verify-registration",
		fmt.Sprintf(`{"code":"%s"}`, code))
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body=%q", rr.Code, rr.Body.String())
	}

	verified := decodeVerifyResponse(t, rr)
	if !verified.OK || verified.UserID == "" {
		t.Fatalf("verify response = %+v", verified)
	}

	user, err := env.users.FindByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() after verify error = %v", err)
	}
	if user.ID != verified.UserID {
		t.Fatalf("userId = %q, want %q", verified.UserID, user.ID)
	}
	if user.FullName != "Alice Cooper" {
		t.Fatalf("full name = %q, want %q", user.FullName, "Alice Cooper")
	}

	// The code is burned: replaying it must fail.
	rr = postJSON(t, env.auth.VerifyRegistration, "/api/v1/auth/verify-registration",
		fmt.Sprintf(`{"code":"%s"}`, code))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("replayed verify status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeInvalidOrExpired {
		t.Fatalf("replayed verify error code = %q, want %q", got, ErrCodeInvalidOrExpired)
	}
}

func TestRegisterRequiresPhone(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.Register, "/api/v1/auth/register",
		`{"fullName":"Alice Cooper","email":"alice@example.com","password":"password123"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeInvalidRequest {
		t.Fatalf("error code = %q, want %q", got, ErrCodeInvalidRequest)
	}
}

func TestRegisterAcceptsLegacyNameFields(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.Register, "/api/v1/auth/register",
		`{"firstName":"Bob","lastName":"Builder","email":"bob@example.com","phone":"+4791234568","password":"password123"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body=%q", rr.Code, rr.Body.String())
	}

	pending, err := env.pending.FindByEmail("bob@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if pending.FullName != "Bob Builder" {
		t.Fatalf("full name = %q, want %q", pending.FullName, "Bob Builder")
	}
}

func TestRegisterStripsMarkupFromName(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.Register, "/api/v1/auth/register",
		`{"fullName":"<script>alert(1)</script>Eve O'Brien","email":"eve@example.com","phone":"+4791234569","password":"password123"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body=%q", rr.Code, rr.Body.String())
	}

	pending, err := env.pending.FindByEmail("eve@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if pending.FullName != "Eve O'Brien" {
		t.Fatalf("full name = %q, want markup stripped and apostrophe intact", pending.FullName)
	}
}

func TestReRegisterReplacesPendingData(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.Register, "/api/v1/auth/register",
		`{"fullName":"Alice","email":"alice@example.com","phone":"+4791234567","password":"password123"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", rr.Code)
	}
	staleCode := env.latestCode(t, "alice@example.com")

	rr = postJSON(t, env.auth.Register, "/api/v1/auth/register",
		`{"fullName":"Alice Cooper","email":"alice@example.com","phone":"+4791234567","password":"betterpassword"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("second register status = %d", rr.Code)
	}
	freshCode := env.latestCode(t, "alice@example.com")

	if staleCode == freshCode {
		t.Skip("both submissions drew the same random code")
	}

	rr = postJSON(t, env.auth.VerifyRegistration, "/api/v1/auth/verify-registration",
		fmt.Sprintf(`{"code":"%s"}`, freshCode))
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body=%q", rr.Code, rr.Body.String())
	}

	user, err := env.users.FindByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if user.FullName != "Alice Cooper" {
		t.Fatalf("full name = %q, want the re-submitted %q", user.FullName, "Alice Cooper")
	}
}

func TestVerifyMissingCode(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.VerifyRegistration, "/api/v1/auth/verify-registration", `{"code":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeMissingCode {
		t.Fatalf("error code = %q, want %q", got, ErrCodeMissingCode)
	}
}

func TestVerifyUnknownCode(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.VerifyRegistration, "/api/v1/auth/verify-registration", `{"code":"000000"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeInvalidOrExpired {
		t.Fatalf("error code = %q, want %q", got, ErrCodeInvalidOrExpired)
	}
}

func TestFailedVerifyLeavesCodeUsable(t *testing.T) {
	env := newTestEnv(t)

	// A code whose pending registration is missing must survive the failed
	// attempt, so completing the signup afterwards can still redeem it.
	expiry := time.Now().Add(5 * time.Minute)
	otp, err := env.otpCodes.Create("ghost@example.com", "135791", auth.PurposeRegistration, expiry)
	if err != nil {
		t.Fatalf("OTPRepository.Create() error = %v", err)
	}

	rr := postJSON(t, env.auth.VerifyRegistration, "/api/v1/auth/verify-registration", `{"code":"135791"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodePendingNotFound {
		t.Fatalf("error code = %q, want %q", got, ErrCodePendingNotFound)
	}

	found, err := env.otpCodes.FindValidByCode("135791", auth.PurposeRegistration)
	if err != nil {
		t.Fatalf("FindValidByCode() after failed verify error = %v", err)
	}
	if found.ID != otp.ID {
		t.Fatalf("found code %q, want %q", found.ID, otp.ID)
	}

	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if _, err := env.pending.Upsert("Ghost Writer", "ghost@example.com", "+4791234560", hash); err != nil {
		t.Fatalf("PendingRegistrationRepository.Upsert() error = %v", err)
	}

	rr = postJSON(t, env.auth.VerifyRegistration, "/api/v1/auth/verify-registration", `{"code":"135791"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("retried verify status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if _, err := env.users.FindByEmail("ghost@example.com"); err != nil {
		t.Fatalf("FindByEmail() after retried verify error = %v", err)
	}
}

func TestRegisterExistingAccountConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "password123")

	rr := postJSON(t, env.auth.Register, "/api/v1/auth/register",
		`{"fullName":"Alice","email":"alice@example.com","phone":"+4791234567","password":"password123"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeConflict {
		t.Fatalf("error code = %q, want %q", got, ErrCodeConflict)
	}
}

func TestLoginDoesNotRevealWhichFieldWasWrong(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "password123")

	wrongPassword := postJSON(t, env.auth.Login, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"not-the-password"}`)
	unknownEmail := postJSON(t, env.auth.Login, "/api/v1/auth/login",
		`{"email":"ghost@example.com","password":"password123"}`)

	if wrongPassword.Code != http.StatusBadRequest || unknownEmail.Code != http.StatusBadRequest {
		t.Fatalf("statuses = %d and %d, want both %d", wrongPassword.Code, unknownEmail.Code, http.StatusBadRequest)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("responses differ:\n%q\n%q", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
	if got := errorCode(t, wrongPassword); got != ErrCodeInvalidCredentials {
		t.Fatalf("error code = %q, want %q", got, ErrCodeInvalidCredentials)
	}
}

func TestLoginIssuesSessionAndTokens(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com", "password123")

	rr := postJSON(t, env.auth.Login, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"password123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body=%q", rr.Code, rr.Body.String())
	}

	session := decodeAuthResponse(t, rr)
	if session.User.ID != user.ID {
		t.Fatalf("user id = %q, want %q", session.User.ID, user.ID)
	}

	claims, err := env.jwtService.ValidateAccessToken(session.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("subject = %q, want %q", claims.Subject, user.ID)
	}

	// The jti must name a live session owned by this user.
	stored, err := env.sessions.FindByID(claims.ID)
	if err != nil {
		t.Fatalf("FindByID(jti) error = %v", err)
	}
	if stored.UserID != user.ID || !stored.Active() {
		t.Fatalf("session = %+v, want active session for %q", stored, user.ID)
	}
}

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com", "password123")

	login := decodeAuthResponse(t, postJSON(t, env.auth.Login, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"password123"}`))

	rr := postJSON(t, env.auth.Refresh, "/api/v1/auth/refresh",
		fmt.Sprintf(`{"refreshToken":"%s"}`, login.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body=%q", rr.Code, rr.Body.String())
	}

	var refreshed RefreshResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh returned the same refresh token")
	}
	if refreshed.User == nil || refreshed.User.ID != user.ID {
		t.Fatalf("refresh response user = %+v, want %q", refreshed.User, user.ID)
	}

	// First-generation token is now spent.
	rr = postJSON(t, env.auth.Refresh, "/api/v1/auth/refresh",
		fmt.Sprintf(`{"refreshToken":"%s"}`, login.RefreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeRefreshRevoked {
		t.Fatalf("error code = %q, want %q", got, ErrCodeRefreshRevoked)
	}

	// The rotated token still works and stays in the same session.
	rr = postJSON(t, env.auth.Refresh, "/api/v1/auth/refresh",
		fmt.Sprintf(`{"refreshToken":"%s"}`, refreshed.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("second refresh status = %d, body=%q", rr.Code, rr.Body.String())
	}
}

func TestRefreshMissingAndUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.Refresh, "/api/v1/auth/refresh", `{"refreshToken":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing token status = %d", rr.Code)
	}
	if got := errorCode(t, rr); got != ErrCodeMissingRefresh {
		t.Fatalf("error code = %q, want %q", got, ErrCodeMissingRefresh)
	}

	rr = postJSON(t, env.auth.Refresh, "/api/v1/auth/refresh", `{"refreshToken":"deadbeef"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token status = %d", rr.Code)
	}
	if got := errorCode(t, rr); got != ErrCodeRefreshInvalid {
		t.Fatalf("error code = %q, want %q", got, ErrCodeRefreshInvalid)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "password123")

	login := decodeAuthResponse(t, postJSON(t, env.auth.Login, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"password123"}`))

	rr := postJSON(t, env.auth.Logout, "/api/v1/auth/logout",
		fmt.Sprintf(`{"refreshToken":"%s"}`, login.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body=%q", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, env.auth.Refresh, "/api/v1/auth/refresh",
		fmt.Sprintf(`{"refreshToken":"%s"}`, login.RefreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d", rr.Code)
	}
	if got := errorCode(t, rr); got != ErrCodeRefreshRevoked {
		t.Fatalf("error code = %q, want %q", got, ErrCodeRefreshRevoked)
	}

	// Logging out twice with the same token is not an error.
	rr = postJSON(t, env.auth.Logout, "/api/v1/auth/logout",
		fmt.Sprintf(`{"refreshToken":"%s"}`, login.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("repeated logout status = %d", rr.Code)
	}
}

func TestSessionRevocationBlocksRefresh(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com", "password123")

	login := decodeAuthResponse(t, postJSON(t, env.auth.Login, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"password123"}`))

	claims, err := env.jwtService.ValidateAccessToken(login.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	caller := identity{UserID: user.ID, SessionID: claims.ID}

	rr := postJSONAs(t, env.auth.RevokeSession, "/api/v1/auth/sessions/revoke",
		fmt.Sprintf(`{"sessionId":"%s"}`, claims.ID), caller)
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, body=%q", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, env.auth.Refresh, "/api/v1/auth/refresh",
		fmt.Sprintf(`{"refreshToken":"%s"}`, login.RefreshToken))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after session revoke status = %d", rr.Code)
	}
	got := errorCode(t, rr)
	if got != ErrCodeRefreshRevoked && got != ErrCodeSessionRevoked {
		t.Fatalf("error code = %q, want session or token revocation", got)
	}
}

func TestRevokeSessionOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice@example.com", "password123")
	bob := env.createUser(t, "bob@example.com", "password123")

	session, err := env.sessions.Create(bob.ID, "agent", "127.0.0.1")
	if err != nil {
		t.Fatalf("SessionRepository.Create() error = %v", err)
	}

	rr := postJSONAs(t, env.auth.RevokeSession, "/api/v1/auth/sessions/revoke",
		fmt.Sprintf(`{"sessionId":"%s"}`, session.ID), identity{UserID: alice.ID})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeForbidden {
		t.Fatalf("error code = %q, want %q", got, ErrCodeForbidden)
	}
}

func TestSendOTPRejectsBadTarget(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.SendOTP, "/api/v1/auth/send-otp", `{"target":"not-an-address"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}
	if got := errorCode(t, rr); got != ErrCodeInvalidOTPTarget {
		t.Fatalf("error code = %q, want %q", got, ErrCodeInvalidOTPTarget)
	}
}

func TestSendOTPToPhone(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.auth.SendOTP, "/api/v1/auth/send-otp", `{"target":"+4791234567"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%q", rr.Code, rr.Body.String())
	}

	if code := env.latestCode(t, "+4791234567"); len(code) != 6 {
		t.Fatalf("stored code = %q, want 6 digits", code)
	}
}
