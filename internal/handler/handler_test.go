package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"account_service/internal/apperr"
	"account_service/internal/auth"
	"account_service/internal/config"
	"account_service/internal/kv"
	"account_service/internal/models"
	"account_service/internal/service"
	"account_service/internal/session"
	"account_service/internal/storage"
	"account_service/internal/throttle"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.Server{Name: "account_service", XPoweredBy: "account_service"},
		API:    config.API{Root: "/api"},
		CORS: config.CORS{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		},
		Token: config.Token{
			Algorithm:     "HS256",
			Issuer:        "test",
			ExpiresIn:     time.Hour,
			Secret:        "signing-secret",
			PayloadSecret: "payload-secret",
		},
		Login: config.Login{Retry: 3, LockWindow: time.Minute},
	}
}

type testServer struct {
	router *gin.Engine
	svc    service.Service
	mr     *miniredis.Miniredis
}

func setupTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := kv.NewRedisStoreFromClient(client)

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(cfg.Token)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewService(
		storage.NewMemoryStorage(),
		hasher,
		tokens,
		session.NewRegistry(store),
		throttle.New(store, cfg.Login.Retry, cfg.Login.LockWindow),
		log,
	)

	return testServer{router: NewHandler(svc, cfg, log).InitRoutes(), svc: svc, mr: mr}
}

func performRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "JWT "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s testServer) login(t *testing.T, email, password string) string {
	t.Helper()

	w := performRequest(s.router, http.MethodPost, "/api/authenticate", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	token := decode(t, w)["token"].(map[string]any)
	return token["access_token"].(string)
}

func (s testServer) register(t *testing.T, email, password string) {
	t.Helper()

	w := performRequest(s.router, http.MethodPost, "/api/register", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (s testServer) seedAdmin(t *testing.T) string {
	t.Helper()

	_, _, err := s.svc.EnsureAdmin(context.Background(), models.AdminSeed{Email: "root@x.com", Password: "root"})
	require.NoError(t, err)
	return s.login(t, "root@x.com", "root")
}

func TestEndToEnd(t *testing.T) {
	s := setupTestServer(t)

	w := performRequest(s.router, http.MethodPost, "/api/register", "", gin.H{"email": "a@x.com", "password": "p1"})
	require.Equal(t, http.StatusCreated, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])
	assert.NotContains(t, w.Body.String(), "password")

	token := s.login(t, "a@x.com", "p1")

	w = performRequest(s.router, http.MethodPut, "/api/users/a@x.com", token, gin.H{"password": "p2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"user": map[string]any{"password": "changed"}}, decode(t, w))

	// old token keeps working after the password change
	w = performRequest(s.router, http.MethodPut, "/api/users/a@x.com", token, gin.H{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = performRequest(s.router, http.MethodDelete, "/api/users/a@x.com", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"logged_out": true}, decode(t, w))

	w = performRequest(s.router, http.MethodDelete, "/api/users/a@x.com", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid access token", decode(t, w)["message"])

	s.login(t, "a@x.com", "p2")
}

func TestRoot(t *testing.T) {
	s := setupTestServer(t)

	w := performRequest(s.router, http.MethodGet, "/api", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "account_service", decode(t, w)["message"])
	assert.Equal(t, "account_service", w.Header().Get("X-Powered-By"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/register", nil)
	// httptest requests target example.com, so the origin must differ.
	req.Header.Set("Origin", "http://client.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	s := setupTestServer(t)

	w := performRequest(s.router, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]any{"message": "Not Found!", "code": "ERR_NOT_FOUND"}, decode(t, w))
}

func TestRegisterErrors(t *testing.T) {
	s := setupTestServer(t)
	s.register(t, "a@x.com", "p1")

	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{name: "duplicate", body: gin.H{"email": "A@x.com", "password": "p"}, status: http.StatusConflict, message: "Email is already registered, use another one."},
		{name: "no password", body: gin.H{"email": "b@x.com"}, status: http.StatusBadRequest, message: "Password is required"},
		{name: "no email", body: gin.H{"password": "p"}, status: http.StatusBadRequest, message: "Email is required"},
		{name: "bad email", body: gin.H{"email": "nope", "password": "p"}, status: http.StatusBadRequest, message: "Invalid email"},
		{name: "bad birthday", body: gin.H{"email": "c@x.com", "password": "p", "birthday": "soon"}, status: http.StatusBadRequest, message: "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(s.router, http.MethodPost, "/api/register", "", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["message"])
		})
	}
}

func TestAuthenticateErrors(t *testing.T) {
	s := setupTestServer(t)
	s.register(t, "a@x.com", "p1")

	w := performRequest(s.router, http.MethodPost, "/api/authenticate", "", gin.H{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email and password are required.", decode(t, w)["message"])

	for i := 0; i < 3; i++ {
		w = performRequest(s.router, http.MethodPost, "/api/authenticate", "", gin.H{"email": "a@x.com", "password": "bad"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Authentication failed", decode(t, w)["message"])
	}

	// locked out even with the right password
	w = performRequest(s.router, http.MethodPost, "/api/authenticate", "", gin.H{"email": "a@x.com", "password": "p1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(s.router, http.MethodPost, "/api/authenticate", "", gin.H{"email": "ghost@x.com", "password": "p1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication failed", decode(t, w)["message"])
}

func TestSingleSession(t *testing.T) {
	s := setupTestServer(t)
	s.register(t, "a@x.com", "p1")

	t1 := s.login(t, "a@x.com", "p1")
	t2 := s.login(t, "a@x.com", "p1")
	require.NotEqual(t, t1, t2)

	w := performRequest(s.router, http.MethodPut, "/api/users/a@x.com", t1, gin.H{"email": "a@x.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(s.router, http.MethodPut, "/api/users/a@x.com", t2, gin.H{"email": "a@x.com"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHeader(t *testing.T) {
	s := setupTestServer(t)
	s.register(t, "a@x.com", "p1")
	token := s.login(t, "a@x.com", "p1")

	for _, header := range []string{"", "Bearer " + token, token} {
		req := httptest.NewRequest(http.MethodDelete, "/api/users/a@x.com", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code, "header %q", header)
		assert.Equal(t, "Invalid access token", decode(t, w)["message"])
	}
}

func TestSelfRoutes_OtherUser(t *testing.T) {
	s := setupTestServer(t)
	s.register(t, "a@x.com", "p1")
	s.register(t, "b@x.com", "p1")
	token := s.login(t, "a@x.com", "p1")

	w := performRequest(s.router, http.MethodPut, "/api/users/b@x.com", token, gin.H{"password": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Unauthorized", decode(t, w)["message"])

	w = performRequest(s.router, http.MethodDelete, "/api/users/b@x.com", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(s.router, http.MethodPut, "/api/users/a@x.com", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email or password is required", decode(t, w)["message"])

	w = performRequest(s.router, http.MethodPut, "/api/users/a@x.com", token, gin.H{"email": "b@x.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBlockedUser(t *testing.T) {
	s := setupTestServer(t)
	adminToken := s.seedAdmin(t)
	s.register(t, "a@x.com", "p1")
	token := s.login(t, "a@x.com", "p1")

	w := performRequest(s.router, http.MethodPut, "/api/admin/users/a@x.com", adminToken, gin.H{"blocked": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"updated": true}, decode(t, w))

	w = performRequest(s.router, http.MethodPut, "/api/users/a@x.com", token, gin.H{"password": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "User is blocked", decode(t, w)["message"])

	w = performRequest(s.router, http.MethodPut, "/api/admin/users/a@x.com", adminToken, gin.H{"blocked": false, "active": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(s.router, http.MethodPut, "/api/users/a@x.com", token, gin.H{"password": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "User not active", decode(t, w)["message"])
}

func TestAdminRoutes(t *testing.T) {
	s := setupTestServer(t)
	adminToken := s.seedAdmin(t)
	s.register(t, "a@x.com", "p1")
	userToken := s.login(t, "a@x.com", "p1")

	w := performRequest(s.router, http.MethodGet, "/api/admin/users", userToken, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Not allowed", decode(t, w)["message"])

	w = performRequest(s.router, http.MethodGet, "/api/admin/users", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(s.router, http.MethodPost, "/api/admin/users", adminToken, gin.H{
		"email": "new@x.com", "password": "p", "username": "newbie", "birthday": "1990-01-01T00:00:00.000Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "newbie", created["username"])
	assert.Equal(t, "1990-01-01", created["birthday"])
	assert.NotNil(t, created["created_by"])

	w = performRequest(s.router, http.MethodGet, "/api/admin/users?limit=10", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decode(t, w)["users"].([]any)
	assert.Len(t, users, 2)

	w = performRequest(s.router, http.MethodGet, "/api/admin/users?limit=abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(s.router, http.MethodGet, "/api/admin/users/NEW@x.com", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new@x.com", decode(t, w)["user"].(map[string]any)["email"])

	w = performRequest(s.router, http.MethodGet, "/api/admin/users/root@x.com", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decode(t, w)["message"])

	w = performRequest(s.router, http.MethodPut, "/api/admin/users/ghost@x.com", adminToken, gin.H{"active": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(s.router, http.MethodDelete, "/api/admin/users/a@x.com", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"deleted": true}, decode(t, w))

	w = performRequest(s.router, http.MethodDelete, "/api/users/a@x.com", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(s.router, http.MethodDelete, "/api/admin/users/a@x.com", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoreUnavailable(t *testing.T) {
	s := setupTestServer(t)
	s.register(t, "a@x.com", "p1")
	s.mr.Close()

	w := performRequest(s.router, http.MethodPost, "/api/authenticate", "", gin.H{"email": "a@x.com", "password": "p1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Service unavailable", decode(t, w)["message"])
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{apperr.Validation("op", "fullname", "max"), http.StatusBadRequest, "Fullname is too long"},
		{apperr.Validation("op", "username", "min"), http.StatusBadRequest, "Username is too short"},
		{apperr.NotFound("op", "session"), http.StatusNotFound, "Session not found"},
		{apperr.New(apperr.KindExpiredToken, "op", ""), http.StatusForbidden, "Invalid access token"},
		{apperr.New(apperr.KindSigningError, "op", ""), http.StatusInternalServerError, "Internal error"},
		{errors.New("plain"), http.StatusInternalServerError, "Internal error"},
	}

	for _, tt := range tests {
		status, msg := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.message, msg, tt.err.Error())
	}
}
