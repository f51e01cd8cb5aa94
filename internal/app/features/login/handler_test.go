// internal/app/features/login/handler_test.go
package login

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"time"

	"github.com/dalemusser/renewhub/internal/app/system/auth"
	"github.com/dalemusser/renewhub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) *Handler {
	t.Helper()
	am, err := auth.NewManager("0123456789abcdef0123456789abcdef", "", "hunter2", "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return NewHandler(am, zap.NewNop())
}

func TestLoginSuccess(t *testing.T) {
	h := newHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"hunter2"}`))
	h.ServeLogin(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200 (body %s)", w.Code, w.Body)
	}
	if len(w.Result().Cookies()) == 0 {
		t.Fatal("login did not set a session cookie")
	}

	// The resulting session passes the operator check.
	authed := httptest.NewRequest(http.MethodGet, "/data", nil)
	for _, c := range w.Result().Cookies() {
		authed.AddCookie(c)
	}
	if !h.Auth.IsOperator(authed) {
		t.Fatal("session from login should be an operator session")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"nope"}`))
	h.ServeLogin(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
}

func TestLoginMalformedBody(t *testing.T) {
	h := newHandler(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{oops"))
	h.ServeLogin(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newHandler(t)
	h.Limiter = ratelimit.NewLoginLimiterWithConfig(3, time.Minute)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"nope"}`))
		h.ServeLogin(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: got %d, want 401", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"nope"}`))
	h.ServeLogin(w, r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429 after limit exhausted", w.Code)
	}
}

func TestLoginSuccessResetsLimit(t *testing.T) {
	h := newHandler(t)
	h.Limiter = ratelimit.NewLoginLimiterWithConfig(3, time.Minute)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeLogin(w, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"nope"}`)))
	}

	w := httptest.NewRecorder()
	h.ServeLogin(w, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"hunter2"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}

	// The window is fresh again after a good login.
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeLogin(w, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"nope"}`)))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d after reset: got %d, want 401", i+1, w.Code)
		}
	}
}

func TestLogout(t *testing.T) {
	h := newHandler(t)

	wLogin := httptest.NewRecorder()
	h.ServeLogin(wLogin, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"hunter2"}`)))

	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range wLogin.Result().Cookies() {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeLogout(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", w.Code)
	}

	after := httptest.NewRequest(http.MethodGet, "/data", nil)
	for _, c := range w.Result().Cookies() {
		after.AddCookie(c)
	}
	if h.Auth.IsOperator(after) {
		t.Fatal("session should be cleared after logout")
	}
}
