package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// newTestRateLimiter はテスト用の小さいバーストを持つRateLimiterを生成する。
func newTestRateLimiter(t *testing.T, generalBurst, loginBurst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // 補充をほぼ無効化
		GeneralBurst:    generalBurst,
		LoginRate:       rate.Limit(0.001),
		LoginBurst:      loginBurst,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGeneralMiddleware_WithinBurst_Allows(t *testing.T) {
	rl := newTestRateLimiter(t, 3, 1)
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Result().StatusCode, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_ExceedsBurst_Returns429(t *testing.T) {
	rl := newTestRateLimiter(t, 2, 1)
	handler := rl.GeneralMiddleware()(okHandler())

	var lastStatus int
	var retryAfter string
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)
		lastStatus = w.Result().StatusCode
		retryAfter = w.Result().Header.Get("Retry-After")
	}

	if lastStatus != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", lastStatus, http.StatusTooManyRequests)
	}
	if retryAfter == "" {
		t.Error("Retry-After header should be set")
	}
}

func TestGeneralMiddleware_UsersAreIsolated(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	handler := rl.GeneralMiddleware()(okHandler())

	// user-1のバーストを使い切る
	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// user-2は影響を受けない
	req2 := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req2 = req2.WithContext(ContextWithUserID(req2.Context(), "user-2"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req2)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("user-2 status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestGeneralMiddleware_NoUserInContext_Returns401(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestLoginMiddleware_KeysByRemoteIP(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 1)
	handler := rl.LoginMiddleware()(okHandler())

	// 同一IPからの2回目は拒否される
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req2.RemoteAddr = "10.0.0.1:50001"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req2)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("same IP second attempt: status = %d, want %d",
			w.Result().StatusCode, http.StatusTooManyRequests)
	}

	// 別IPは独立してカウントされる
	req3 := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req3.RemoteAddr = "10.0.0.2:50000"
	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, req3)

	if w3.Result().StatusCode != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", w3.Result().StatusCode, http.StatusOK)
	}
}

func TestLoginMiddleware_DoesNotRequireSession(t *testing.T) {
	rl := newTestRateLimiter(t, 1, 5)
	handler := rl.LoginMiddleware()(okHandler())

	// コンテキストにユーザーIDがなくても通る（ログインは未認証）
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.9:40000"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRateLimiter_LimiterCounts(t *testing.T) {
	rl := newTestRateLimiter(t, 5, 5)
	generalHandler := rl.GeneralMiddleware()(okHandler())
	loginHandler := rl.LoginMiddleware()(okHandler())

	for _, userID := range []string{"user-a", "user-b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
		generalHandler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	loginHandler.ServeHTTP(httptest.NewRecorder(), req)

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", got)
	}
	if got := rl.LoginLimiterCount(); got != 1 {
		t.Errorf("LoginLimiterCount() = %d, want 1", got)
	}
}

func TestRateLimiter_CleanupEvictsStaleEntries(t *testing.T) {
	rl := &RateLimiter{
		config: RateLimiterConfig{
			GeneralRate:     rate.Limit(1),
			GeneralBurst:    1,
			LoginRate:       rate.Limit(1),
			LoginBurst:      1,
			CleanupInterval: time.Millisecond,
		},
		general: newLimiterTable(rate.Limit(1), 1),
		login:   newLimiterTable(rate.Limit(1), 1),
		stopCh:  make(chan struct{}),
	}

	rl.general.getOrCreate("stale-user")
	rl.general.limiters["stale-user"].lastAccess = time.Now().Add(-time.Hour)
	rl.login.getOrCreate("10.0.0.1")
	rl.login.limiters["10.0.0.1"].lastAccess = time.Now().Add(-time.Hour)

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount() after cleanup = %d, want 0", got)
	}
	if got := rl.LoginLimiterCount(); got != 0 {
		t.Errorf("LoginLimiterCount() after cleanup = %d, want 0", got)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"10.0.0.1:50000", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"no-port", "no-port"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}
