package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/klyr/eudoxus/internal/config"
	"github.com/klyr/eudoxus/internal/eudoxus/eudoxustest"
	"github.com/klyr/eudoxus/internal/logging"
	"github.com/klyr/eudoxus/internal/observability"
	"github.com/klyr/eudoxus/internal/rules"
)

type testSite struct {
	mode           string
	upstream       string
	target         string
	maxBodyBytes   int64
	maxHeaderBytes int64
}

func newTestGateway(t *testing.T, upstreamURL string, site testSite) (*Gateway, *bytes.Buffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "foo.e")
	if err := os.WriteFile(path, eudoxustest.MustEncode(t, eudoxustest.AhoCorasick("foo")), 0o600); err != nil {
		t.Fatalf("write automaton: %v", err)
	}
	if site.target == "" {
		site.target = "ARGS"
	}
	if site.maxBodyBytes == 0 {
		site.maxBodyBytes = 1024
	}
	if site.maxHeaderBytes == 0 {
		site.maxHeaderBytes = 1024
	}

	upstreams := ""
	if upstreamURL != "" {
		upstreams = fmt.Sprintf("upstreams:\n  - name: backend\n    url: %q\n", upstreamURL)
	}
	doc := fmt.Sprintf(`
configVersion: 1
%sautomata:
  - name: foo
    path: %q
sites:
  - name: default
    upstream: %q
    mode: %s
    anomalyThreshold: 5
    limits:
      maxBodyBytes: %d
      maxHeaderBytes: %d
      timeout: 2s
    actions:
      blockStatusCode: 403
      blockBody: blocked
    rules:
      - id: "1"
        target: %s
        automaton: foo
        score: 5
        tags: [test]
        msg: "MATCH=%%{FIELD_NAME}"
`, upstreams, path, site.upstream, site.mode, site.maxBodyBytes, site.maxHeaderBytes, site.target)

	cfg, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	engine, err := rules.BuildEngine(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("BuildEngine error: %v", err)
	}
	gw, err := New(cfg, engine)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var buf bytes.Buffer
	gw.SetDecisionLogger(logging.NewDecisionLogger(&buf))
	return gw, &buf
}

func lastDecision(t *testing.T, buf *bytes.Buffer) logging.Decision {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var decision logging.Decision
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &decision); err != nil {
		t.Fatalf("invalid decision line: %v", err)
	}
	return decision
}

func newBackend(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok:"))
		_, _ = w.Write(body)
	}))
	t.Cleanup(backend.Close)
	return backend
}

func TestGatewayProxy(t *testing.T) {
	var hits int32
	backend := newBackend(t, &hits)
	gw, log := newTestGateway(t, backend.URL, testSite{mode: "enforce", upstream: "backend"})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/?q=bar", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "ok:" {
		t.Fatalf("expected body ok:, got %q", body)
	}
	decision := lastDecision(t, log)
	if decision.Action != "allow" || decision.Site != "default" || decision.RequestID == "" {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestGatewayBlocksInEnforceMode(t *testing.T) {
	var hits int32
	backend := newBackend(t, &hits)
	gw, log := newTestGateway(t, backend.URL, testSite{mode: "enforce", upstream: "backend"})

	reg := prometheus.NewRegistry()
	gw.SetMetrics(observability.NewMetrics(reg))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/?a=1&q=xfoo", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "blocked") {
		t.Fatalf("expected block body, got %q", rec.Body.String())
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("blocked request reached the upstream")
	}

	decision := lastDecision(t, log)
	if decision.Action != "block" || decision.Reason != "rule" || decision.Score != 5 {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if len(decision.MatchedRules) != 1 {
		t.Fatalf("expected 1 matched rule, got %d", len(decision.MatchedRules))
	}
	matched := decision.MatchedRules[0]
	if matched.Field != "q" || matched.Message != "MATCH=q" || matched.Evidence != "foo" {
		t.Fatalf("unexpected matched rule %+v", matched)
	}

	count, err := testutil.GatherAndCount(reg, "eudoxus_blocks_total")
	if err != nil || count != 1 {
		t.Fatalf("expected one block series, got %d (%v)", count, err)
	}
}

func TestGatewayDetectModeForwards(t *testing.T) {
	var hits int32
	backend := newBackend(t, &hits)
	gw, log := newTestGateway(t, backend.URL, testSite{mode: "detect", upstream: "backend"})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/?q=foo", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected request forwarded, got %d", rec.Code)
	}
	decision := lastDecision(t, log)
	if decision.Action != "detect" || len(decision.MatchedRules) != 1 {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestGatewayOffModeSkipsRules(t *testing.T) {
	var hits int32
	backend := newBackend(t, &hits)
	gw, log := newTestGateway(t, backend.URL, testSite{mode: "off", upstream: "backend"})

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/?q=foo", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decision := lastDecision(t, log)
	if decision.Action != "allow" || decision.Score != 0 || len(decision.MatchedRules) != 0 {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestGatewayWithoutUpstreamAnswersNoContent(t *testing.T) {
	gw, log := newTestGateway(t, "", testSite{mode: "detect"})

	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.com/?a=foo&b=foo", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	decision := lastDecision(t, log)
	if len(decision.MatchedRules) != 2 || decision.Score != 10 {
		t.Fatalf("expected both args to match, got %+v", decision)
	}
}

func TestGatewayInspectsBodyAndForwardsIt(t *testing.T) {
	var hits int32
	backend := newBackend(t, &hits)
	gw, log := newTestGateway(t, backend.URL, testSite{mode: "detect", upstream: "backend", target: "REQUEST_BODY"})

	req := httptest.NewRequest(http.MethodPost, "http://example.com/", strings.NewReader("payload foo"))
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if body := rec.Body.String(); body != "ok:payload foo" {
		t.Fatalf("expected upstream to receive the body, got %q", body)
	}
	decision := lastDecision(t, log)
	if len(decision.MatchedRules) != 1 || decision.MatchedRules[0].Field != "REQUEST_BODY" {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestGatewayRejectsLargeBody(t *testing.T) {
	var hits int32
	backend := newBackend(t, &hits)
	gw, log := newTestGateway(t, backend.URL, testSite{mode: "enforce", upstream: "backend", maxBodyBytes: 4})

	req := httptest.NewRequest(http.MethodPost, "http://example.com/", bytes.NewBufferString("hello"))
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if decision := lastDecision(t, log); decision.Reason != "body_limit" {
		t.Fatalf("expected body_limit reason, got %+v", decision)
	}
}

func TestGatewayRejectsLargeHeaders(t *testing.T) {
	var hits int32
	backend := newBackend(t, &hits)
	gw, _ := newTestGateway(t, backend.URL, testSite{mode: "enforce", upstream: "backend", maxHeaderBytes: 8})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("X-Test", "0123456789")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestHeaderFieldsTooLarge {
		t.Fatalf("expected 431, got %d", rec.Code)
	}
}

func TestReadBodyIfNeeded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abc"))
	body, err := readBodyIfNeeded(req, 8, true)
	if err != nil || string(body) != "abc" {
		t.Fatalf("expected body abc, got %q (%v)", body, err)
	}
	again, _ := io.ReadAll(req.Body)
	if string(again) != "abc" {
		t.Fatalf("expected body to be restored, got %q", again)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcdef"))
	req.ContentLength = -1
	if _, err := readBodyIfNeeded(req, 4, true); err == nil {
		t.Fatal("expected limit error")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abc"))
	if body, _ := readBodyIfNeeded(req, 8, false); body != nil {
		t.Fatalf("expected body left unread, got %q", body)
	}
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := New(&config.Config{}, nil); err == nil {
		t.Fatal("expected error without engine")
	}
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error without config")
	}
}
