package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkravchenko/authd/internal/logging"
	"github.com/mkravchenko/authd/internal/server/auth"
	"github.com/mkravchenko/authd/internal/server/config"
	"github.com/mkravchenko/authd/internal/server/models"
	"github.com/mkravchenko/authd/internal/server/repositories/repomanager"
	"github.com/mkravchenko/authd/internal/server/services"
)

// newTestServer wires the full stack over an in-process redis, so handler
// tests exercise real storage semantics.
func newTestServer(t *testing.T) (*gin.Engine, *services.UserService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	cfg := &config.Config{
		StorageBackend:               "redis",
		RedisAddr:                    mr.Addr(),
		SecretKey:                    "test-secret",
		JWTAlgorithm:                 "HS256",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 24 * time.Hour,
		BcryptCost:                   bcrypt.MinCost,
	}
	rm, err := repomanager.NewRepositoryManager(cfg)
	if err != nil {
		t.Fatalf("NewRepositoryManager error: %v", err)
	}
	t.Cleanup(func() { rm.Close() })
	if err := rm.RunMigrations(context.Background()); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	us, err := services.NewUserService(rm, hasher, hasher, cfg, logger)
	if err != nil {
		t.Fatalf("NewUserService error: %v", err)
	}
	return NewHTTPServer(":0", logger, us).Router(), us
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerAlice(t *testing.T, router *gin.Engine) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "Secr3t!pw",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", w.Code, w.Body.String())
	}
}

func loginAlice(t *testing.T, router *gin.Engine) services.TokenPair {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{
		"username": "alice",
		"password": "Secr3t!pw",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	var pair services.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	return pair
}

func TestHealth(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestRegister(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "Secr3t!pw",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["username"] != "alice" || body["role"] != "standard" || body["status"] != "active" {
		t.Fatalf("body: %v", body)
	}
	if body["id"] == "" || body["id"] == nil {
		t.Fatalf("missing id: %v", body)
	}
	// the hash stays server-side
	for _, k := range []string{"password", "password_hash"} {
		if _, ok := body[k]; ok {
			t.Fatalf("response leaks %q: %v", k, body)
		}
	}

	// same username again → conflict
	w = doJSON(t, router, http.MethodPost, "/auth/register", gin.H{
		"username": "alice",
		"email":    "other@example.com",
		"password": "Secr3t!pw",
	}, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: status %d", w.Code)
	}
}

func TestRegister_MalformedBody(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}

	// missing fields fail validation the same way
	w = doJSON(t, router, http.MethodPost, "/auth/register", gin.H{"username": "x"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestLogin(t *testing.T) {
	router, _ := newTestServer(t)
	registerAlice(t, router)

	pair := loginAlice(t, router)
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 3600 {
		t.Fatalf("pair: %+v", pair)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty tokens: %+v", pair)
	}

	// wrong password and unknown user produce identical generic failures
	wrong := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"username": "alice", "password": "nope-nope"}, "")
	ghost := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"username": "ghost", "password": "nope-nope"}, "")
	if wrong.Code != http.StatusUnauthorized || ghost.Code != http.StatusUnauthorized {
		t.Fatalf("status: wrong=%d ghost=%d", wrong.Code, ghost.Code)
	}
	if wrong.Body.String() != ghost.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", wrong.Body.String(), ghost.Body.String())
	}
	if wrong.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("missing WWW-Authenticate header")
	}
}

func TestLogin_SuspendedAccount(t *testing.T) {
	router, us := newTestServer(t)
	registerAlice(t, router)

	status := models.UserStatusSuspended
	aliceID := mustLookupAliceID(t, router, us)
	if _, err := us.UpdateUser(context.Background(), aliceID, services.UserUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	w := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"username": "alice", "password": "Secr3t!pw"}, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "suspended") {
		t.Fatalf("body should carry the status: %s", w.Body.String())
	}
}

func mustLookupAliceID(t *testing.T, router *gin.Engine, us *services.UserService) string {
	t.Helper()
	pair := loginAlice(t, router)
	claims, err := us.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return claims.Subject
}

func TestRefresh_RotatesExactlyOnce(t *testing.T) {
	router, _ := newTestServer(t)
	registerAlice(t, router)
	pair := loginAlice(t, router)

	// first redemption succeeds and returns a new pair
	w := doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.RefreshToken}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", w.Code, w.Body.String())
	}
	var next services.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	// replaying the spent token fails
	w = doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.RefreshToken}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("replay: status %d", w.Code)
	}

	// the rotated token is live
	w = doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": next.RefreshToken}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("rotated token: status %d", w.Code)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": "never-issued"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
}

func TestLogout(t *testing.T) {
	router, _ := newTestServer(t)
	registerAlice(t, router)
	pair := loginAlice(t, router)

	w := doJSON(t, router, http.MethodPost, "/auth/logout", nil, pair.AccessToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d body %s", w.Code, w.Body.String())
	}

	// every session is revoked, so the refresh token is dead
	w = doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.RefreshToken}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d", w.Code)
	}

	// repeating the logout is harmless; the access token itself stays valid
	w = doJSON(t, router, http.MethodPost, "/auth/logout", nil, pair.AccessToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("second logout: status %d", w.Code)
	}
}

func TestMe(t *testing.T) {
	router, _ := newTestServer(t)
	registerAlice(t, router)
	pair := loginAlice(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/users/me", nil, pair.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["username"] != "alice" {
		t.Fatalf("body: %v", body)
	}
}

func TestMySessions(t *testing.T) {
	router, _ := newTestServer(t)
	registerAlice(t, router)
	first := loginAlice(t, router)
	loginAlice(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/users/me/sessions", nil, first.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var body struct {
		Items []sessionResponse `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("sessions: %+v", body.Items)
	}
	if strings.Contains(w.Body.String(), "hash") || strings.Contains(w.Body.String(), first.RefreshToken) {
		t.Fatalf("response leaks token material: %s", w.Body.String())
	}

	// logout empties the list; the access token itself still decodes
	if w := doJSON(t, router, http.MethodPost, "/auth/logout", nil, first.AccessToken); w.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/api/users/me/sessions", nil, first.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("after logout: status %d", w.Code)
	}
	body.Items = nil
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 0 {
		t.Fatalf("sessions after logout: %+v", body.Items)
	}
}

func TestAuthenticate_RejectsBadHeaders(t *testing.T) {
	router, _ := newTestServer(t)

	// no header
	w := doJSON(t, router, http.MethodGet, "/api/users/me", nil, "")
	if w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("no header: status %d", w.Code)
	}

	// wrong scheme
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong scheme: status %d", rec.Code)
	}

	// garbage token
	w = doJSON(t, router, http.MethodGet, "/api/users/me", nil, "garbage")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", w.Code)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	router, _ := newTestServer(t)

	method, err := auth.SigningMethod("HS256")
	if err != nil {
		t.Fatalf("SigningMethod: %v", err)
	}
	expired, err := auth.GenerateToken("u1", "alice", "standard", []byte("test-secret"), method, -time.Second)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/users/me", nil, expired)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", w.Code)
	}
}

func seedAdmin(t *testing.T, us *services.UserService) services.TokenPair {
	t.Helper()
	if _, err := us.Register(context.Background(), "root", "root@example.com", "Adm1n!pw!", models.UserRoleAdministrator); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	pair, err := us.Login(context.Background(), "root", "Adm1n!pw!")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	return *pair
}

func TestAdmin_RequiresAdminCapability(t *testing.T) {
	router, us := newTestServer(t)
	registerAlice(t, router)
	alice := loginAlice(t, router)
	admin := seedAdmin(t, us)

	// a standard user is rejected
	w := doJSON(t, router, http.MethodGet, "/api/admin/users", nil, alice.AccessToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("standard user: status %d", w.Code)
	}

	// an administrator passes
	w = doJSON(t, router, http.MethodGet, "/api/admin/users", nil, admin.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("admin: status %d body %s", w.Code, w.Body.String())
	}
}

func TestAdmin_ListUsers(t *testing.T) {
	router, us := newTestServer(t)
	registerAlice(t, router)
	admin := seedAdmin(t, us)

	w := doJSON(t, router, http.MethodGet, "/api/admin/users?role=standard", nil, admin.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var body struct {
		Items []userResponse `json:"items"`
		Total int64          `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Items) != 1 || body.Items[0].Username != "alice" {
		t.Fatalf("body: %+v", body)
	}

	// bad pagination values are rejected, not silently defaulted
	w = doJSON(t, router, http.MethodGet, "/api/admin/users?offset=abc", nil, admin.AccessToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad offset: status %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/api/admin/users?created_after=yesterday", nil, admin.AccessToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad created_after: status %d", w.Code)
	}
}

func TestAdmin_UserLifecycle(t *testing.T) {
	router, us := newTestServer(t)
	registerAlice(t, router)
	admin := seedAdmin(t, us)
	aliceID := mustLookupAliceID(t, router, us)

	// fetch
	w := doJSON(t, router, http.MethodGet, "/api/admin/users/"+aliceID, nil, admin.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}

	// suspend
	w = doJSON(t, router, http.MethodPatch, "/api/admin/users/"+aliceID, gin.H{"status": "suspended"}, admin.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", w.Code, w.Body.String())
	}
	login := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"username": "alice", "password": "Secr3t!pw"}, "")
	if login.Code != http.StatusForbidden {
		t.Fatalf("suspended login: status %d", login.Code)
	}

	// invalid enum value never reaches the service
	w = doJSON(t, router, http.MethodPatch, "/api/admin/users/"+aliceID, gin.H{"role": "superuser"}, admin.AccessToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad role: status %d", w.Code)
	}

	// delete, then the record is gone
	w = doJSON(t, router, http.MethodDelete, "/api/admin/users/"+aliceID, nil, admin.AccessToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/api/admin/users/"+aliceID, nil, admin.AccessToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", w.Code)
	}
	w = doJSON(t, router, http.MethodDelete, "/api/admin/users/"+aliceID, nil, admin.AccessToken)
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete twice: status %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestServer(t)
	registerAlice(t, router)
	loginAlice(t, router)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "authd_logins_total") {
		t.Fatalf("metrics body missing login counter")
	}
}
