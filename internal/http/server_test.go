package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sewa/internal/config"
	"sewa/internal/core"
	"sewa/internal/directory"
	"sewa/internal/ledger"
	"sewa/internal/log"
	"sewa/internal/middleware/ratelimit"
	"sewa/internal/services"
	"sewa/internal/sheets"
	"sewa/internal/sheets/memory"
)

type unavailableStore struct{}

func (unavailableStore) ReadAll(ctx context.Context, table string) (sheets.Table, error) {
	return sheets.Table{}, core.ErrStoreUnavailable
}

func (unavailableStore) WriteAll(ctx context.Context, table string, t sheets.Table) error {
	return core.ErrStoreUnavailable
}

func testConfig() *config.Config {
	return &config.Config{
		RatePerUnit:     decimal.RequireFromString("0.60"),
		Currency:        "RM",
		Units:           []string{"Unit 1", "Unit 5"},
		RoomTypes:       []string{"Room 1", "Room 2"},
		AdminCredential: "secret",
	}
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newTestServer(t *testing.T, store sheets.TabularStore, opts Options) (*Server, *services.BillingService) {
	t.Helper()
	svc := services.NewBillingService(directory.New(store), ledger.New(store), testConfig(),
		services.WithClock(func() core.Date { return core.NewDate(2024, 3, 1) }))
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s := NewServer(":0", svc, nil, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, svc
}

// withAli registers Ali on Unit 5 / Room 2 with a baseline of 100.
func withAli(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	s, svc := newTestServer(t, store, Options{})
	initial := decimal.NewFromInt(100)
	if _, err := svc.RegisterTenant(context.Background(), services.Registration{
		AdminCredential: "secret",
		Name:            "Ali",
		Unit:            "Unit 5",
		Room:            "Room 2",
		InitialReading:  &initial,
	}); err != nil {
		t.Fatalf("RegisterTenant: %v", err)
	}
	return s, store
}

func do(s *Server, method, target string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	r := httptest.NewRequest(method, target, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, r)
	return w
}

func recordCount(t *testing.T, store sheets.TabularStore) int {
	t.Helper()
	tbl, err := store.ReadAll(context.Background(), sheets.TableRecords)
	if err != nil {
		t.Fatal(err)
	}
	return len(tbl.Rows)
}

func TestIndex(t *testing.T) {
	s, _ := withAli(t)

	w := do(s, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `<option value="Ali">Ali</option>`) {
		t.Errorf("index does not list Ali:\n%s", body)
	}
	if !strings.Contains(body, "RM 0.6 per unit") {
		t.Errorf("index does not show the rate:\n%s", body)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestIndexShowsStoreError(t *testing.T) {
	s, _ := newTestServer(t, unavailableStore{}, Options{})

	w := do(s, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ledger is unavailable") {
		t.Errorf("store error not rendered:\n%s", w.Body.String())
	}
}

func TestIdentify(t *testing.T) {
	s, store := withAli(t)

	w := do(s, http.MethodPost, "/portal/identify", url.Values{"name": {"Ali"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `<strong id="previous-reading">100</strong>`) {
		t.Errorf("previous reading not rendered:\n%s", w.Body.String())
	}
	tenants, _ := store.ReadAll(context.Background(), sheets.TableTenants)
	id := tenants.Rows[0].Get("Tenant_ID")
	if id == "" || !strings.Contains(w.Body.String(), `name="tenant_id" value="`+id+`"`) {
		t.Errorf("tenant id %q not carried into the submit form:\n%s", id, w.Body.String())
	}

	w = do(s, http.MethodPost, "/portal/identify", url.Values{"name": {"Nobody"}})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown tenant status = %d, want 404", w.Code)
	}
}

func TestSubmitAliScenario(t *testing.T) {
	s, store := withAli(t)

	w := do(s, http.MethodPost, "/portal/submit", url.Values{"name": {"Ali"}, "reading": {"150"}, "rent": {"500"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "RM 530.00") {
		t.Errorf("first receipt missing total:\n%s", w.Body.String())
	}
	if trig := w.Header().Get("HX-Trigger"); !strings.Contains(trig, "bill:recorded") {
		t.Errorf("HX-Trigger = %q, want bill:recorded", trig)
	}

	w = do(s, http.MethodPost, "/portal/submit", url.Values{"name": {"Ali"}, "reading": {"180"}, "rent": {"500"}})
	if !strings.Contains(w.Body.String(), "RM 518.00") {
		t.Errorf("second receipt missing total:\n%s", w.Body.String())
	}

	if n := recordCount(t, store); n != 3 {
		t.Errorf("records = %d, want 3", n)
	}
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{"lower reading", url.Values{"name": {"Ali"}, "reading": {"90"}, "rent": {"500"}}, http.StatusUnprocessableEntity},
		{"bad amount", url.Values{"name": {"Ali"}, "reading": {"12a"}, "rent": {"500"}}, http.StatusUnprocessableEntity},
		{"unknown tenant", url.Values{"name": {"Bob"}, "reading": {"150"}, "rent": {"500"}}, http.StatusNotFound},
		{"blank name", url.Values{"name": {" "}, "reading": {"150"}, "rent": {"500"}}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := withAli(t)
			w := do(s, http.MethodPost, "/portal/submit", tt.form)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `class="error"`) {
				t.Errorf("error body not rendered: %s", w.Body.String())
			}
			if n := recordCount(t, store); n != 1 {
				t.Errorf("records = %d, want only the baseline", n)
			}
		})
	}
}

func TestSubmitAmbiguousIdentity(t *testing.T) {
	store := memory.New()
	_ = store.WriteAll(context.Background(), sheets.TableTenants, sheets.Table{
		Columns: []string{directory.ColName, directory.ColUnit, directory.ColRoom},
		Rows: []sheets.Row{
			{directory.ColName: "Ali", directory.ColUnit: "Unit 1", directory.ColRoom: "Room 1"},
			{directory.ColName: "Ali", directory.ColUnit: "Unit 5", directory.ColRoom: "Room 2"},
		},
	})
	s, _ := newTestServer(t, store, Options{})

	w := do(s, http.MethodPost, "/portal/submit", url.Values{"name": {"Ali"}, "reading": {"150"}, "rent": {"500"}})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestSubmitStoreUnavailable(t *testing.T) {
	s, _ := newTestServer(t, unavailableStore{}, Options{})

	w := do(s, http.MethodPost, "/portal/submit", url.Values{"name": {"Ali"}, "reading": {"150"}, "rent": {"500"}})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestQuote(t *testing.T) {
	s, store := withAli(t)

	w := do(s, http.MethodPost, "/portal/quote", url.Values{"name": {"Ali"}, "reading": {""}, "rent": {"400"}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Enter the meter reading") {
		t.Errorf("blank quote = %d %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodPost, "/portal/quote", url.Values{"name": {"Ali"}, "reading": {"110"}, "rent": {"400"}})
	if !strings.Contains(w.Body.String(), "RM 406.00") {
		t.Errorf("quote missing total:\n%s", w.Body.String())
	}
	if n := recordCount(t, store); n != 1 {
		t.Errorf("quote appended a record: %d rows", n)
	}
}

func TestHistory(t *testing.T) {
	s, _ := withAli(t)
	do(s, http.MethodPost, "/portal/submit", url.Values{"name": {"Ali"}, "reading": {"150"}, "rent": {"500"}})

	w := do(s, http.MethodPost, "/portal/history", url.Values{"name": {"Ali"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{core.InitialMarker, "2024-03-01", "530.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("history missing %q:\n%s", want, body)
		}
	}
}

func TestRegisterTenant(t *testing.T) {
	s, _ := withAli(t)
	form := url.Values{
		"admin_credential": {"secret"},
		"name":             {"Siti"},
		"unit":             {"Unit 1"},
		"room":             {"Room 1"},
		"initial_reading":  {"42"},
	}

	// Warm the names cache so registration has to invalidate it.
	do(s, http.MethodGet, "/portal/names", nil)

	bad := url.Values{}
	for k, v := range form {
		bad[k] = v
	}
	bad.Set("admin_credential", "wrong")
	if w := do(s, http.MethodPost, "/admin/tenants", bad); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong admin credential status = %d, want 401", w.Code)
	}

	w := do(s, http.MethodPost, "/admin/tenants", form)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), "tenant:registered") {
		t.Errorf("HX-Trigger = %q", w.Header().Get("HX-Trigger"))
	}

	w = do(s, http.MethodGet, "/portal/names", nil)
	if !strings.Contains(w.Body.String(), "Siti") {
		t.Errorf("names not refreshed after registration:\n%s", w.Body.String())
	}

	if w := do(s, http.MethodPost, "/admin/tenants", form); w.Code != http.StatusConflict {
		t.Errorf("duplicate registration status = %d, want 409", w.Code)
	}
}

func TestAdminPage(t *testing.T) {
	s, _ := withAli(t)

	w := do(s, http.MethodGet, "/admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `<option value="Unit 5">Unit 5</option>`) {
		t.Errorf("units not listed:\n%s", w.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	s, _ := withAli(t)

	w := do(s, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}

	w = do(s, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("readyz = %d: %s", w.Code, w.Body.String())
	}

	svc := services.NewBillingService(directory.New(memory.New()), ledger.New(memory.New()), testConfig())
	down := NewServer(":0", svc, func(context.Context) error { return errors.New("sheets down") }, Options{Logger: quietLogger()})
	defer down.Shutdown(context.Background())

	w = do(down, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store = %d, want 503", w.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "not_ready" {
		t.Errorf("status = %v, want not_ready", payload["status"])
	}
}

func TestMetrics(t *testing.T) {
	s, _ := withAli(t)
	do(s, http.MethodPost, "/portal/submit", url.Values{"name": {"Ali"}, "reading": {"150"}, "rent": {"500"}})
	do(s, http.MethodPost, "/portal/submit", url.Values{"name": {"Ali"}, "reading": {"1"}, "rent": {"500"}})

	w := do(s, http.MethodGet, "/metrics", nil)
	body := w.Body.String()
	for _, want := range []string{
		"sewa_bills_recorded_total 1",
		`sewa_submission_errors_total{kind="invalid_reading"} 1`,
		`route="POST /portal/submit"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, memory.New(), Options{
		RateLimit: ratelimit.Config{RequestsPerMinute: 2, CleanupInterval: time.Minute, Methods: []string{http.MethodPost}},
	})

	for i := 0; i < 2; i++ {
		if w := do(s, http.MethodPost, "/portal/identify", url.Values{"name": {"x"}}); w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i)
		}
	}
	w := do(s, http.MethodPost, "/portal/identify", url.Values{"name": {"x"}})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}

	if w := do(s, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("GET limited: %d", w.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	s, _ := withAli(t)

	w := do(s, http.MethodGet, "/static/app.css", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Cache-Control") == "" {
		t.Error("Cache-Control missing on static asset")
	}
}
