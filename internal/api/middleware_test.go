package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsLoopbackRemoteAddr(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"::1", true},
		{"[::1]", true},
		{"127.0.0.1", true},
		{"8.8.8.8:12345", false},
		{"192.168.1.1:8080", false},
		{"not-an-ip:1234", false},
		{"", false},
		{"garbage", false},
	}

	for _, tc := range cases {
		if got := isLoopbackRemoteAddr(tc.addr); got != tc.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestLoopbackGuard_Rejects_NonLoopback(t *testing.T) {
	handler := LoopbackGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for non-loopback")
	}))

	req := httptest.NewRequest(http.MethodGet, "/outputs/a.mp4", nil)
	req.RemoteAddr = "8.8.8.8:12345"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
	body := decodeJSONBody(t, rr)
	if code, ok := body["code"].(string); !ok || code != "FORBIDDEN" {
		t.Errorf("error code = %v, want FORBIDDEN", body["code"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"auth disabled", "", "", http.StatusOK},
		{"missing header", "s3cret-token", "", http.StatusUnauthorized},
		{"wrong scheme", "s3cret-token", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "s3cret-token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "s3cret-token", "Bearer s3cret-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(tt.token, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRouter_HealthIsPublic(t *testing.T) {
	cfg := testConfig(&fakeRepo{})
	cfg.Token = "s3cret-token"

	if rr := serve(cfg, http.MethodGet, "/health", nil); rr.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rr.Code)
	}
	if rr := serve(cfg, http.MethodGet, "/runs", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("/runs without token = %d, want 401", rr.Code)
	}
	rr := serve(cfg, http.MethodGet, "/runs", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer s3cret-token")
	})
	if rr.Code != http.StatusOK {
		t.Errorf("/runs with token = %d, want 200", rr.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RequestIDMiddleware()(RecoveryMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "INTERNAL_ERROR" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestIDMiddleware_SetsContext(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 8 {
		t.Errorf("request id = %q, want 8 chars", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Error("header and context request id differ")
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv := NewServer(testConfig(&fakeRepo{}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve() returned %v after shutdown", err)
	}
}
