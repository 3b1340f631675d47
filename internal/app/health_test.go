package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/cache"
)

func serve(t *testing.T, svc *Service, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	NewHTTPServer(svc, "*").Handler().ServeHTTP(rr, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
	}
	return rr, body
}

func checkStatus(t *testing.T, body map[string]any, name string) map[string]any {
	t.Helper()
	checks, ok := body["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %v", body["checks"])
	}
	check, ok := checks[name].(map[string]any)
	if !ok {
		t.Fatalf("expected %s check, got %v", name, checks[name])
	}
	return check
}

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(&fakeStore{
		pingFn: func(context.Context) error { return errors.New("must not be called") },
	})

	rr, body := serve(t, svc, http.MethodGet, "/api/health")
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if body["ok"] != true {
		t.Errorf("expected ok=true, got %v", body["ok"])
	}
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}
	if cacheControl := rr.Header().Get("Cache-Control"); cacheControl != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cacheControl)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}
}

func TestPreflightRequest(t *testing.T) {
	svc := newTestService(&fakeStore{})

	for _, path := range []string{"/api/health", "/api/boards/brd_1"} {
		rr, _ := serve(t, svc, http.MethodOptions, path)
		if rr.Code != http.StatusNoContent {
			t.Errorf("%s: expected status 204 for OPTIONS, got %d", path, rr.Code)
		}
		if methods := rr.Header().Get("Access-Control-Allow-Methods"); methods != "GET,POST,PATCH,DELETE,OPTIONS" {
			t.Errorf("%s: unexpected allowed methods %q", path, methods)
		}
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{name: "database up", wantCode: http.StatusOK, wantStatus: "ready", wantDB: "ok"},
		{name: "database down", pingErr: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable, wantStatus: "not_ready", wantDB: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeStore{
				pingFn: func(context.Context) error { return tt.pingErr },
			})

			rr, body := serve(t, svc, http.MethodGet, "/api/ready")
			if rr.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected status=%s, got %v", tt.wantStatus, body["status"])
			}
			if body["ok"] != (tt.pingErr == nil) {
				t.Errorf("unexpected ok=%v", body["ok"])
			}
			db := checkStatus(t, body, "database")
			if db["status"] != tt.wantDB {
				t.Errorf("expected database status=%s, got %v", tt.wantDB, db["status"])
			}
			if tt.pingErr != nil && db["error"] != tt.pingErr.Error() {
				t.Errorf("expected database error=%q, got %v", tt.pingErr, db["error"])
			}
			if checks := body["checks"].(map[string]any); checks["cache"] != nil {
				t.Errorf("expected no cache check without a cache, got %v", checks["cache"])
			}
		})
	}
}

func TestReadyEndpoint_CacheDegraded(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache("redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer redisCache.Close()

	svc := newTestService(&fakeStore{})
	svc.UseCache(redisCache)

	rr, body := serve(t, svc, http.MethodGet, "/api/ready")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with cache up, got %d", rr.Code)
	}
	if check := checkStatus(t, body, "cache"); check["status"] != "ok" {
		t.Errorf("expected cache status=ok, got %v", check["status"])
	}

	mr.Close()
	rr, body = serve(t, svc, http.MethodGet, "/api/ready")
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 with cache down, got %d", rr.Code)
	}
	if check := checkStatus(t, body, "cache"); check["status"] != "degraded" {
		t.Errorf("expected cache status=degraded, got %v", check["status"])
	}
}

func TestPingMethod(t *testing.T) {
	for _, pingErr := range []error{nil, errors.New("connection failed")} {
		svc := newTestService(&fakeStore{
			pingFn: func(context.Context) error { return pingErr },
		})
		if err := svc.Ping(context.Background()); !errors.Is(err, pingErr) {
			t.Errorf("Ping() error = %v, want %v", err, pingErr)
		}
	}
}
