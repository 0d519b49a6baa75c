package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/pixel-press/internal/config"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	cfg := &config.Config{
		AppUsername:     "admin",
		AppPasswordHash: string(hash),
		SessionSecret:   "test-secret",
	}

	manager := NewManager(cfg)
	router := gin.New()
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	router.Use(sessions.Sessions(SessionCookieName, store))

	router.POST("/api/auth/login", manager.Login)
	router.GET("/api/ping", manager.RequireLogin(), manager.VerifyCSRF(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(ContextUserKey)})
	})
	router.POST("/api/ping", manager.RequireLogin(), manager.VerifyCSRF(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router, manager
}

func loginRequestBody(t *testing.T, username, password string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		t.Fatalf("failed to marshal login body: %v", err)
	}
	return bytes.NewBuffer(body)
}

func doLogin(t *testing.T, router *gin.Engine, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", loginRequestBody(t, username, password))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccessIssuesSessionAndCSRFToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := doLogin(t, router, "admin", "correct-password")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-CSRF-Token") == "" {
		t.Fatal("missing CSRF token header")
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("expected session cookie to be set")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := doLogin(t, router, "admin", "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}

func TestLoginLocksOutAfterRepeatedFailures(t *testing.T) {
	router, _ := newAuthRouter(t)

	for i := 0; i < maxLoginAttempts; i++ {
		rec := doLogin(t, router, "admin", "wrong")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: unexpected status %d", i+1, rec.Code)
		}
	}

	rec := doLogin(t, router, "admin", "correct-password")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected lockout, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestSuccessfulLoginResetsFailureCount(t *testing.T) {
	router, manager := newAuthRouter(t)

	for i := 0; i < maxLoginAttempts-1; i++ {
		doLogin(t, router, "admin", "wrong")
	}
	rec := doLogin(t, router, "admin", "correct-password")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	manager.lock.Lock()
	remaining := len(manager.attempts)
	manager.lock.Unlock()
	if remaining != 0 {
		t.Fatalf("expected attempt state to be cleared, found %d entries", remaining)
	}
}

func TestRequireLoginRejectsAnonymous(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestAuthenticatedRequestFlow(t *testing.T) {
	router, _ := newAuthRouter(t)

	login := doLogin(t, router, "admin", "correct-password")
	if login.Code != http.StatusNoContent {
		t.Fatalf("login failed: %d", login.Code)
	}
	token := login.Header().Get("X-CSRF-Token")
	cookies := login.Result().Cookies()

	// GET は CSRF トークンなしで通る
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status for GET: %d body=%s", rec.Code, rec.Body.String())
	}

	// 状態変更系はトークンなしでは拒否される
	req = httptest.NewRequest(http.MethodPost, "/api/ping", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected CSRF rejection, got %d", rec.Code)
	}

	// 正しいトークンを添えると通る
	req = httptest.NewRequest(http.MethodPost, "/api/ping", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	req.Header.Set("X-CSRF-Token", token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status with CSRF token: %d", rec.Code)
	}
}

func TestCSRFRejectsWrongToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	login := doLogin(t, router, "admin", "correct-password")
	cookies := login.Result().Cookies()

	req := httptest.NewRequest(http.MethodPost, "/api/ping", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	req.Header.Set("X-CSRF-Token", "forged-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected CSRF rejection, got %d", rec.Code)
	}
}
