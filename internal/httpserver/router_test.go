package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding/internal/handler"
	"onboarding/internal/service/admin"
	"onboarding/internal/service/auth"
	"onboarding/internal/service/journey"
	"onboarding/internal/testutil"
	"onboarding/pkg/trace"
	"onboarding/pkg/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

const testSecret = "router-secret"

func newTestRouter(t *testing.T, opts Options, db Pinger, pub Connected) *gin.Engine {
	t.Helper()
	store := testutil.NewDemoStore()
	log := zap.NewNop()

	engine := journey.NewEngine(store, log)
	adminService := admin.NewService(store, log)
	authService := auth.NewService(store, testSecret, time.Hour, log)

	h := Handlers{
		Journey: handler.NewJourneyHandler(engine, adminService, log),
		Admin:   handler.NewAdminHandler(adminService, log),
		Auth:    handler.NewAuthHandler(authService, "session", time.Hour, log),
	}
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	return NewRouter(h, authService, opts, log, db, pub)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, Options{}, nil, nil)

	for _, path := range []string{"/healthz", "/health"} {
		if w := serve(r, httptest.NewRequest(http.MethodGet, path, nil)); w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, w.Code)
		}
		if w := serve(r, httptest.NewRequest(http.MethodHead, path, nil)); w.Code != http.StatusOK {
			t.Fatalf("HEAD %s = %d", path, w.Code)
		}
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil)); w.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		pub  Connected
		want int
	}{
		{"no deps", nil, nil, http.StatusOK},
		{"all up", fakePinger{}, fakeConn(true), http.StatusOK},
		{"db down", fakePinger{err: errors.New("down")}, nil, http.StatusServiceUnavailable},
		{"mq down", fakePinger{}, fakeConn(false), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, Options{}, tt.db, tt.pub)
			if w := serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil)); w.Code != tt.want {
				t.Fatalf("readyz = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAdminOpenByDefault(t *testing.T) {
	r := newTestRouter(t, Options{}, nil, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/admin/journeys", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("admin without guard = %d", w.Code)
	}
}

func TestAdminGuard(t *testing.T) {
	r := newTestRouter(t, Options{RequireAdmin: true}, nil, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	if w := serve(r, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", w.Code)
	}

	userToken, _ := util.GenerateJWT(3, false, testSecret, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: userToken})
	if w := serve(r, req); w.Code != http.StatusForbidden {
		t.Fatalf("user token = %d", w.Code)
	}

	adminToken, _ := util.GenerateJWT(1, true, testSecret, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: adminToken})
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("admin token = %d %s", w.Code, w.Body.String())
	}

	// user API stays open
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/users", nil)); w.Code != http.StatusOK {
		t.Fatalf("/api/users = %d", w.Code)
	}
}

func TestTraceIDHeader(t *testing.T) {
	r := newTestRouter(t, Options{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "given-trace")
	if got := serve(r, req).Header().Get(trace.HeaderName); got != "given-trace" {
		t.Fatalf("trace id = %q, want given-trace", got)
	}

	if got := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Header().Get(trace.HeaderName); got == "" {
		t.Fatal("no trace id generated")
	}
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t, Options{AllowOrigins: []string{"http://localhost:3000"}}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestCORSWithoutOriginsOmitsCredentials(t *testing.T) {
	r := newTestRouter(t, Options{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("allow credentials = %q, want none", got)
	}
}

func TestCORSWithOriginsAllowsCredentials(t *testing.T) {
	r := newTestRouter(t, Options{AllowOrigins: []string{"http://localhost:3000"}}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow credentials = %q, want true", got)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"login.html": "<h1>login</h1>",
		"index.html": "<h1>index</h1>",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	r := newTestRouter(t, Options{StaticDir: dir}, nil, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "login") {
		t.Fatalf("/ = %d %q", w.Code, w.Body.String())
	}
	w = serve(r, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "index") {
		t.Fatalf("/index.html = %d %q", w.Code, w.Body.String())
	}
	w = serve(r, httptest.NewRequest(http.MethodPost, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("POST unknown = %d", w.Code)
	}
}
