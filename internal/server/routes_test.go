package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chromapicker/license-server/internal/store"
)

func newTestDeps(t *testing.T) (*http.ServeMux, *store.LicenseStore) {
	t.Helper()
	st, err := store.NewLicenseStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLicenseStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mux := http.NewServeMux()
	RegisterRoutes(mux, &Deps{
		Config: &Config{
			AdminKey:            "test-admin-key",
			StripeWebhookSecret: "whsec_test",
			AllowedOrigins:      "*",
		},
		Store:   st,
		Version: "test",
	})
	return mux, st
}

func TestRoutes_Healthz(t *testing.T) {
	mux, _ := newTestDeps(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestRoutes_Readyz(t *testing.T) {
	mux, _ := newTestDeps(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d", rec.Code, http.StatusOK)
	}
}

func TestRoutes_StatusRequiresAdminKey(t *testing.T) {
	mux, _ := newTestDeps(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d, want=%d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Admin-Key", "test-admin-key")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status=%d, want=%d", rec.Code, http.StatusOK)
	}
}

func TestRoutes_MetricsRequiresAdminKey(t *testing.T) {
	mux, _ := newTestDeps(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d, want=%d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer test-admin-key")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status=%d, want=%d", rec.Code, http.StatusOK)
	}
}

func TestRoutes_ValidatePreflight(t *testing.T) {
	mux, _ := newTestDeps(t)

	for _, path := range []string{"/api/license/validate", "/api/license/check-email"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "chrome-extension://abcdef")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s preflight status=%d, want=%d", path, rec.Code, http.StatusOK)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("%s Access-Control-Allow-Origin = %q, want %q", path, got, "*")
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
			t.Errorf("%s Access-Control-Allow-Methods = %q", path, got)
		}
	}
}

func TestRoutes_ValidateEndToEnd(t *testing.T) {
	mux, st := newTestDeps(t)

	if err := st.Create(&store.License{
		Email:           "e2e@example.com",
		LicenseKey:      "E2E0-1111-E2E0-1111",
		StripeSessionID: "cs_e2e_1",
		IsActive:        true,
	}); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]string{"licenseKey": "e2e0-1111-e2e0-1111"})
	req := httptest.NewRequest(http.MethodPost, "/api/license/validate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Valid bool   `json:"valid"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid || resp.Email != "e2e@example.com" {
		t.Errorf("resp = %+v, want valid with seeded email", resp)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header on client endpoint response")
	}
}

func TestRoutes_RateLimitedResponsesCarryCORSHeaders(t *testing.T) {
	mux, _ := newTestDeps(t)

	// Burn through the per-client budget. The extension reads these
	// responses cross-origin, so even the 429 must carry CORS headers.
	var rec *httptest.ResponseRecorder
	for i := 0; i < 241; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/license/validate", nil)
		req.Header.Set("Origin", "chrome-extension://abcdef")
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status after exhausting budget = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("429 Access-Control-Allow-Origin = %q, want %q", got, "*")
	}

	// Preflights answer before the limiter and never spend budget.
	req := httptest.NewRequest(http.MethodOptions, "/api/license/validate", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight after exhausted budget status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRoutes_AdminLicensesRequiresKey(t *testing.T) {
	mux, _ := newTestDeps(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/licenses", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status=%d, want=%d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRoutes_AdminDeactivateFlow(t *testing.T) {
	mux, st := newTestDeps(t)

	l := &store.License{
		Email:           "admin@example.com",
		LicenseKey:      "ADMN-1111-ADMN-1111",
		StripeSessionID: "cs_admin_1",
		IsActive:        true,
	}
	if err := st.Create(l); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/licenses/"+l.ID+"/deactivate", nil)
	req.Header.Set("X-Admin-Key", "test-admin-key")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	got, err := st.Get(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Error("license should be inactive after admin deactivation")
	}
}
