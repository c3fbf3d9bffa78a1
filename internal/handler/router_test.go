package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/radioedit/internal/field"
	"github.com/hitoshi/radioedit/internal/importer"
	"github.com/hitoshi/radioedit/internal/metrics"
	"github.com/hitoshi/radioedit/internal/middleware"
	"github.com/hitoshi/radioedit/internal/programs"
	"github.com/hitoshi/radioedit/internal/store"
)

const testToken = "alice-secret-token"

type routerFixture struct {
	server  *httptest.Server
	service *programs.Service
}

// newRouterFixture はメモリストア上の実サービスでルーター全体を起動する。
func newRouterFixture(t *testing.T, imp ImporterInterface, withMetrics bool) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	var gatherer prometheus.Gatherer
	var collector metrics.MetricsCollector
	if withMetrics {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		gatherer = reg
	}

	svc := programs.NewService(
		programs.NewSynchronizer(store.NewMemoryStore(), programs.Options{MaxPrograms: 3}),
		collector,
		logger,
	)
	rl := middleware.NewRateLimiter(middleware.PerMinuteConfig(100, 5))
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		Logger:            logger,
		Tokens:            middleware.TokenSet{testToken: "alice"},
		CORSAllowedOrigin: "https://editor.example.com",
		RateLimiter:       rl,
		ProgramService:    svc,
		Importer:          imp,
		HealthChecker:     svc,
		MetricsGatherer:   gatherer,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &routerFixture{server: server, service: svc}
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	for _, token := range []string{"", "wrong-token"} {
		resp := f.do(t, http.MethodGet, "/api/programs", token, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestRouter_HealthIsPublic(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	resp := f.do(t, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should apply to public routes")
	}
}

// 保存した内容が外部表現で読み戻せることを検証
func TestRouter_SaveThenList(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	body := `{"programs":[
		{"pid":"a","title":"Morning","status":"OK","genre":"Books & Spoken","selected":true},
		{"pid":"b","title":"Night"}
	]}`
	resp := f.do(t, http.MethodPut, "/api/programs", testToken, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/programs", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", resp.StatusCode)
	}
	var list struct {
		Programs    []map[string]any `json:"programs"`
		MaxPrograms int              `json:"max_programs"`
	}
	decodeBody(t, resp, &list)

	if len(list.Programs) != 2 || list.MaxPrograms != 3 {
		t.Fatalf("list = %+v", list)
	}
	first, second := list.Programs[0], list.Programs[1]
	if first["pid"] != "a" || first["status"] != "OK" || first["genre"] != "Books & Spoken" {
		t.Errorf("first = %v", first)
	}
	if first["selected"] != nil {
		t.Errorf("selected = %v, want null on load", first["selected"])
	}
	if second["status"] != "Pending" || second["day_of_week"] != "Any" || second["quality"] != "Normal" {
		t.Errorf("second defaults = %v", second)
	}
	if first["pos"] != float64(1) || second["pos"] != float64(2) {
		t.Errorf("pos = %v/%v, want 1/2", first["pos"], second["pos"])
	}
}

func TestRouter_SaveRejectsUnknownValueAndKeepsState(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	if resp := f.do(t, http.MethodPut, "/api/programs", testToken, `{"programs":[{"pid":"a"}]}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("seed status = %d", resp.StatusCode)
	}

	resp := f.do(t, http.MethodPut, "/api/programs", testToken, `{"programs":[{"pid":"a","status":"Done"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	rows, err := f.service.LoadPrograms(context.Background())
	if err != nil {
		t.Fatalf("LoadPrograms returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("len(rows) = %d, want 1", len(rows))
	}
	if status, _ := rows[0].Get(field.KeyStatus); status != "Pending" {
		t.Errorf("status = %v, want unchanged Pending", status)
	}
}

func TestRouter_CapacityExceeded(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	body := `{"programs":[{"pid":"a"},{"pid":"b"},{"pid":"c"},{"pid":"d"}]}`
	resp := f.do(t, http.MethodPut, "/api/programs", testToken, body)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

// 削除した番組が履歴として参照できることを検証
func TestRouter_HistoryAfterRemoval(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	f.do(t, http.MethodPut, "/api/programs", testToken, `{"programs":[{"pid":"a","title":"Gone"},{"pid":"b"}]}`)
	f.do(t, http.MethodPut, "/api/programs", testToken, `{"programs":[{"pid":"b"}]}`)

	resp := f.do(t, http.MethodGet, "/api/programs/history?pid=a", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var history struct {
		History []map[string]any `json:"history"`
	}
	decodeBody(t, resp, &history)

	if len(history.History) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history.History))
	}
	if history.History[0]["title"] != "Gone" {
		t.Errorf("history title = %v", history.History[0]["title"])
	}
	if history.History[0]["download_time"] == "" {
		t.Error("history record should carry a download_time")
	}
}

func TestRouter_Fields(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	resp := f.do(t, http.MethodGet, "/api/programs/fields", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var fields fieldsResponse
	decodeBody(t, resp, &fields)
	if len(fields.Fields) != len(field.OrderOf(field.FieldHeaders)) {
		t.Errorf("len(fields) = %d", len(fields.Fields))
	}
}

func TestRouter_ImportRouteOnlyWithImporter(t *testing.T) {
	f := newRouterFixture(t, nil, false)
	resp := f.do(t, http.MethodPost, "/api/programs/import", testToken, `{"url":"https://a.example.com"}`)
	if resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404/405 without importer", resp.StatusCode)
	}

	var calls int
	imp := &mockImporter{importFn: func(ctx context.Context, rawURL string) (*importer.Result, error) {
		calls++
		return &importer.Result{FeedURL: rawURL}, nil
	}}
	f = newRouterFixture(t, imp, false)
	resp = f.do(t, http.MethodPost, "/api/programs/import", testToken, `{"url":"https://a.example.com"}`)
	if resp.StatusCode != http.StatusOK || calls != 1 {
		t.Errorf("status = %d calls = %d", resp.StatusCode, calls)
	}
}

func TestRouter_ImportRateLimit(t *testing.T) {
	f := newRouterFixture(t, &mockImporter{}, false)

	var statuses []int
	for range 6 {
		resp := f.do(t, http.MethodPost, "/api/programs/import", testToken, `{"url":"https://a.example.com"}`)
		statuses = append(statuses, resp.StatusCode)
	}
	want := []int{200, 200, 200, 200, 200, 429}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t, nil, true)
	f.do(t, http.MethodPut, "/api/programs", testToken, `{"programs":[{"pid":"a"}]}`)

	resp := f.do(t, http.MethodGet, "/metrics", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "radioedit_active_programs 1") {
		t.Errorf("metrics output missing active programs gauge:\n%s", body)
	}

	f = newRouterFixture(t, nil, false)
	if resp := f.do(t, http.MethodGet, "/metrics", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without gatherer", resp.StatusCode)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newRouterFixture(t, nil, false)

	req, _ := http.NewRequest(http.MethodOptions, f.server.URL+"/api/programs", nil)
	req.Header.Set("Origin", "https://editor.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://editor.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
