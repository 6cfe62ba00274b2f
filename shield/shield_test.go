package shield

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/pixivmcp/dbopen"
	"github.com/hazyhaar/pixivmcp/kit"
	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("CSP missing")
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	// Allowed origin gets CORS headers.
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin: %q", got)
	}

	// Unknown origin gets none.
	req = httptest.NewRequest(http.MethodGet, "/api/search", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers leaked to unknown origin")
	}

	// Preflight from unknown origin is rejected.
	req = httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("preflight status: %d", rec.Code)
	}

	// Preflight from allowed origin succeeds without hitting the handler.
	req = httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status: %d", rec.Code)
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/", nil))
	if method != http.MethodGet {
		t.Errorf("method seen by handler: %q", method)
	}
}

func TestTraceID(t *testing.T) {
	var traceID string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("no per-request logger")
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if traceID == "" {
		t.Fatal("no trace ID in context")
	}
	if rec.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("header %q != context %q", rec.Header().Get("X-Trace-ID"), traceID)
	}
}

func TestRateLimiter_DefaultBudget(t *testing.T) {
	rl := NewRateLimiter(testDB(t), 2)
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
		req.RemoteAddr = "10.1.1.1:4444"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d blocked: %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
	req.RemoteAddr = "10.1.1.1:4444"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request not blocked: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("429 content type: %q", ct)
	}

	// A different IP has its own bucket.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
	req.RemoteAddr = "10.2.2.2:4444"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other IP blocked: %d", rec.Code)
	}
}

func TestRateLimiter_EndpointRuleOverridesDefault(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(
		`INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, 1, 60, 1)`,
		"POST /api/search"); err != nil {
		t.Fatal(err)
	}

	rl := NewRateLimiter(db, 100)
	h := rl.Middleware(okHandler())

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/search", nil)
		req.RemoteAddr = "10.1.1.1:4444"
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}
}

func TestRateLimiter_ExcludedPrefix(t *testing.T) {
	rl := NewRateLimiter(testDB(t), 1, "/health")
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.1.1.1:4444"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("health check blocked on request %d", i)
		}
	}
}

func TestRateLimiter_ZeroDefaultIsUnlimited(t *testing.T) {
	rl := NewRateLimiter(testDB(t), 0)
	h := rl.Middleware(okHandler())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
		req.RemoteAddr = "10.1.1.1:4444"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d blocked with unlimited default", i)
		}
	}
}

func TestMaintenance_BlocksWithJSON(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE maintenance SET active = 1, message = 'rotating tokens' WHERE id = 1`); err != nil {
		t.Fatal(err)
	}
	mm := NewMaintenanceMode(db, "/health")
	h := mm.Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ranking", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rotating tokens") {
		t.Errorf("body: %s", rec.Body.String())
	}

	// Excluded prefix passes.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health blocked during maintenance: %d", rec.Code)
	}
}

func TestMaintenance_OffByDefault(t *testing.T) {
	mm := NewMaintenanceMode(testDB(t))
	if mm.Active() {
		t.Fatal("maintenance active on fresh database")
	}
}

func TestMaxJSONBody(t *testing.T) {
	h := MaxJSONBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err != nil && !strings.Contains(err.Error(), "EOF") {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized JSON body not rejected: %d", rec.Code)
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := ExtractIP(req); got != "10.0.0.1" {
		t.Errorf("remote addr: %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.9" {
		t.Errorf("forwarded: %q", got)
	}
}
