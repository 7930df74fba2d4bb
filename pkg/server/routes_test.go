package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/health"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/usage"
)

type stubProber struct {
	outcome circuit.Outcome
}

func (p stubProber) Probe(ctx context.Context, _ providers.Provider) circuit.Outcome {
	return p.outcome
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return body.Error.Code
}

func controlServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig(t)
	withProviders(cfg, providers.AppClaude, "https://a.example", "https://b.example")
	withProviders(cfg, providers.AppCodex, "https://c.example")
	s, _ := newTestServer(t, cfg, Options{
		Prober:  stubProber{outcome: circuit.Succeeded(200, time.Millisecond)},
		Version: "1.2.3",
	})
	return s
}

func TestRoutes_Providers(t *testing.T) {
	s := controlServer(t)
	h := s.Handler()

	var all struct {
		Providers []health.ProviderHealth `json:"providers"`
	}
	w := serve(t, h, http.MethodGet, ControlPrefix+"/providers")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all.Providers) != 3 {
		t.Errorf("providers = %d, want 3", len(all.Providers))
	}
	if all.Providers[0].Badge != health.Unknown || all.Providers[0].Name != "Provider A" {
		t.Errorf("first provider = %+v", all.Providers[0])
	}

	w = serve(t, h, http.MethodGet, ControlPrefix+"/providers?app=codex")
	json.Unmarshal(w.Body.Bytes(), &all)
	if len(all.Providers) != 1 || all.Providers[0].App != providers.AppCodex {
		t.Errorf("codex providers = %+v", all.Providers)
	}

	w = serve(t, h, http.MethodGet, ControlPrefix+"/providers?app=emacs")
	if w.Code != http.StatusNotFound || errorCode(t, w) != "unknown_app" {
		t.Errorf("unknown app = %d %s", w.Code, w.Body)
	}
}

func TestRoutes_CheckProvider(t *testing.T) {
	s := controlServer(t)
	h := s.Handler()

	// "A" exists for claude and codex.
	w := serve(t, h, http.MethodPost, ControlPrefix+"/providers/A/check")
	if w.Code != http.StatusBadRequest {
		t.Errorf("ambiguous id = %d, want 400", w.Code)
	}

	w = serve(t, h, http.MethodPost, ControlPrefix+"/providers/B/check")
	if w.Code != http.StatusOK {
		t.Fatalf("check B = %d %s", w.Code, w.Body)
	}
	var res health.CheckResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success || !res.Counted || res.App != providers.AppClaude {
		t.Errorf("check result = %+v", res)
	}
	if b := s.Tracker().Badge(providers.AppClaude, "B"); b != health.Available {
		t.Errorf("badge after check = %v", b)
	}

	w = serve(t, h, http.MethodPost, ControlPrefix+"/providers/B/check")
	if w.Code != http.StatusTooManyRequests || errorCode(t, w) != "probe_rate_limited" {
		t.Errorf("second check = %d %s, want 429", w.Code, w.Body)
	}

	w = serve(t, h, http.MethodPost, ControlPrefix+"/providers/Z/check")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing provider = %d, want 404", w.Code)
	}
	w = serve(t, h, http.MethodPost, ControlPrefix+"/providers/Z/check?app=claude")
	if w.Code != http.StatusNotFound || errorCode(t, w) != "provider_not_found" {
		t.Errorf("missing provider with app = %d %s", w.Code, w.Body)
	}
}

func TestRoutes_EnableProvider(t *testing.T) {
	s := controlServer(t)
	for i := 0; i < 2; i++ {
		s.Switch().ReportOutcome(providers.AppClaude, "A", circuit.Failed(circuit.FailureTransport, 0, 0, nil))
	}
	if st := s.Switch().Breaker(providers.AppClaude).Snapshot("A"); st.Status != circuit.Open {
		t.Fatalf("A = %v, want open", st.Status)
	}

	w := serve(t, s.Handler(), http.MethodPost, ControlPrefix+"/providers/A/enable?app=claude")
	if w.Code != http.StatusOK {
		t.Fatalf("enable = %d %s", w.Code, w.Body)
	}
	var st circuit.State
	json.Unmarshal(w.Body.Bytes(), &st)
	if st.Status != circuit.Closed || st.ConsecutiveFailures != 0 {
		t.Errorf("state after enable = %+v", st)
	}
	if p, ok := s.Switch().Active(providers.AppClaude, time.Now()); !ok || p.ID != "A" {
		t.Errorf("active = %s, want A", p.ID)
	}
}

func TestRoutes_TakeoverBeforeListen(t *testing.T) {
	s := controlServer(t)
	w := serve(t, s.Handler(), http.MethodPost, ControlPrefix+"/takeover/claude")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("enable before listen = %d, want 503", w.Code)
	}

	w = serve(t, s.Handler(), http.MethodGet, ControlPrefix+"/takeover")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"enabled":false`) {
		t.Errorf("takeover status = %d %s", w.Code, w.Body)
	}
}

func TestRoutes_Usage(t *testing.T) {
	s := controlServer(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i, id := range []string{"A", "A", "B"} {
		err := s.Usage().Append(ctx, &usage.Entry{
			ID:         string(rune('a' + i)),
			Timestamp:  now.Add(-time.Duration(i) * time.Minute),
			App:        providers.AppClaude,
			ProviderID: id,
			StatusCode: 200,
			Success:    id == "B",
			Attempt:    1,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	var page UsagePage
	w := serve(t, s.Handler(), http.MethodGet, ControlPrefix+"/usage?provider=A&limit=1")
	json.Unmarshal(w.Body.Bytes(), &page)
	if w.Code != http.StatusOK || page.Total != 2 || len(page.Entries) != 1 || page.Entries[0].ID != "a" {
		t.Errorf("usage page = %d %+v", w.Code, page)
	}

	var stats struct {
		Stats []usage.ProviderStats `json:"stats"`
	}
	w = serve(t, s.Handler(), http.MethodGet, ControlPrefix+"/usage/stats?app=claude")
	json.Unmarshal(w.Body.Bytes(), &stats)
	if len(stats.Stats) != 2 {
		t.Errorf("stats = %+v", stats.Stats)
	}

	w = serve(t, s.Handler(), http.MethodGet, ControlPrefix+"/usage?limit=-1")
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_value" {
		t.Errorf("bad limit = %d %s", w.Code, w.Body)
	}

	w = serve(t, s.Handler(), http.MethodGet, ControlPrefix+"/usage/stats?app=claude&success=true")
	json.Unmarshal(w.Body.Bytes(), &stats)
	if len(stats.Stats) != 1 || stats.Stats[0].ProviderID != "B" {
		t.Errorf("successful stats = %+v", stats.Stats)
	}
}

func TestRoutes_Misc(t *testing.T) {
	s := controlServer(t)
	h := s.Handler()

	tests := []struct {
		method, target string
		want           int
		contains       string
	}{
		{http.MethodGet, ControlPrefix + "/health", http.StatusOK, `"status"`},
		{http.MethodGet, ControlPrefix + "/version", http.StatusOK, `"1.2.3"`},
		{http.MethodGet, ControlPrefix + "/status", http.StatusOK, `"active_provider":"A"`},
		{http.MethodGet, ControlPrefix + "/nope", http.StatusNotFound, `"not_found"`},
		{http.MethodPost, ControlPrefix + "/health", http.StatusNotFound, `"not_found"`},
		{http.MethodPost, ControlPrefix + "/usage/prune", http.StatusOK, `"by_age":0`},
		{http.MethodPost, ControlPrefix + "/reload", http.StatusUnprocessableEntity, `"invalid_value"`},
		{http.MethodGet, "/metrics", http.StatusOK, "switchboard_proxy_breaker_state"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := serve(t, h, tt.method, tt.target)
			if w.Code != tt.want || !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("%s %s = %d %s; want %d containing %s", tt.method, tt.target, w.Code, w.Body, tt.want, tt.contains)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestParseUsageQuery(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		query   string
		check   func(*usage.Query) bool
		wantErr bool
	}{
		{"", func(q *usage.Query) bool { return q.App == "" && q.Since == nil && q.Limit == 0 }, false},
		{"app=Claude-Code&provider=A", func(q *usage.Query) bool { return q.App == "claude" && q.ProviderID == "A" }, false},
		{"since=24h", func(q *usage.Query) bool { return q.Since.Equal(now.Add(-24 * time.Hour)) }, false},
		{"until=2025-05-01T00:00:00Z", func(q *usage.Query) bool { return q.Until.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) }, false},
		{"success=false&limit=10&offset=5", func(q *usage.Query) bool { return !*q.Success && q.Limit == 10 && q.Offset == 5 }, false},
		{"since=yesterday", nil, true},
		{"since=-1h", nil, true},
		{"success=maybe", nil, true},
		{"offset=x", nil, true},
		{"app=vim", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			q, err := ParseUsageQuery(r, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUsageQuery(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if err == nil && !tt.check(q) {
				v, _ := url.ParseQuery(tt.query)
				t.Errorf("ParseUsageQuery(%v) = %+v", v, q)
			}
		})
	}
}
