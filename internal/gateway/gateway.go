package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/klyr/eudoxus/internal/config"
	"github.com/klyr/eudoxus/internal/logging"
	"github.com/klyr/eudoxus/internal/observability"
	"github.com/klyr/eudoxus/internal/policy"
	"github.com/klyr/eudoxus/internal/rules"
)

const (
	reasonRule        = "rule"
	reasonHeaderLimit = "header_limit"
	reasonBodyLimit   = "body_limit"
)

var errBodyTooLarge = errors.New("body exceeds limit")

// Gateway inspects each request with the rules of the site it routes to and
// forwards what it lets through to the site's upstream.
type Gateway struct {
	router  *Router
	sites   map[string]config.Site
	proxies map[string]*httputil.ReverseProxy

	engine      *rules.Engine
	logger      *slog.Logger
	decisionLog *logging.DecisionLogger
	metrics     *observability.Metrics
}

func New(cfg *config.Config, engine *rules.Engine) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if engine == nil {
		return nil, errors.New("rule engine is required")
	}

	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}

	transport := newTransport(maxSiteTimeout(cfg))
	proxies := make(map[string]*httputil.ReverseProxy, len(cfg.Upstreams))
	for _, upstream := range cfg.Upstreams {
		target, err := url.Parse(upstream.URL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream %s: %w", upstream.Name, err)
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = transport
		proxy.ErrorHandler = proxyError
		proxies[upstream.Name] = proxy
	}

	sites := make(map[string]config.Site, len(cfg.Sites))
	for _, site := range cfg.Sites {
		sites[site.Name] = site
	}

	return &Gateway{
		router:  router,
		sites:   sites,
		proxies: proxies,
		engine:  engine,
		logger:  logging.Discard(),
	}, nil
}

func (g *Gateway) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

func (g *Gateway) SetDecisionLogger(logger *logging.DecisionLogger) {
	g.decisionLog = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := g.router.Match(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	site := g.sites[route.Site]

	start := time.Now()
	decision := logging.Decision{
		Timestamp: start.UTC(),
		RequestID: uuid.NewString(),
		ClientIP:  clientIP(r),
		Host:      r.Host,
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Site:      site.Name,
		Mode:      site.Mode,
		Threshold: site.AnomalyThreshold,
	}

	if exceedsHeaderLimit(r.Header, site.Limits.MaxHeaderBytes) {
		g.reject(w, decision, start, http.StatusRequestHeaderFieldsTooLarge, reasonHeaderLimit, "request headers too large")
		return
	}
	if site.Limits.MaxBodyBytes > 0 && r.ContentLength > site.Limits.MaxBodyBytes {
		g.reject(w, decision, start, http.StatusRequestEntityTooLarge, reasonBodyLimit, "request body too large")
		return
	}

	ctx := r.Context()
	if site.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, site.Limits.Timeout)
		defer cancel()
	}

	if policy.Inspects(site.Mode) {
		body, err := readBodyIfNeeded(r, site.Limits.MaxBodyBytes, g.engine.NeedsBody(site.Name))
		if err != nil {
			g.reject(w, decision, start, http.StatusRequestEntityTooLarge, reasonBodyLimit, "request body too large")
			return
		}

		result := g.engine.Evaluate(site.Name, r, body)
		decision.Score = result.Score
		decision.MatchedRules = mapMatches(result.Matches)
		for _, m := range result.Matches {
			g.logger.Debug("rule matched",
				"request_id", decision.RequestID,
				"site", site.Name,
				"rule_id", m.RuleID,
				"field", m.Field,
				"message", m.Message,
			)
		}
	}

	action, shouldBlock := policy.DecideAction(site.Mode, decision.Score, site.AnomalyThreshold)
	decision.Action = string(action)
	if shouldBlock {
		decision.StatusCode = blockStatus(site)
		decision.Reason = reasonRule
		g.writeDecision(decision, start)
		http.Error(w, blockBody(site), decision.StatusCode)
		return
	}

	proxy, ok := g.proxies[site.Upstream]
	if !ok {
		decision.StatusCode = http.StatusNoContent
		g.writeDecision(decision, start)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if site.Limits.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, site.Limits.MaxBodyBytes)
	}
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	upstreamStart := time.Now()
	proxy.ServeHTTP(rec, r.WithContext(ctx))
	decision.StatusCode = rec.status
	decision.UpstreamMS = time.Since(upstreamStart).Milliseconds()
	g.writeDecision(decision, start)
}

func (g *Gateway) reject(w http.ResponseWriter, decision logging.Decision, start time.Time, status int, reason, msg string) {
	decision.Action = string(policy.ActionBlock)
	decision.StatusCode = status
	decision.Reason = reason
	g.writeDecision(decision, start)
	http.Error(w, msg, status)
}

func (g *Gateway) writeDecision(decision logging.Decision, start time.Time) {
	decision.DurationMS = time.Since(start).Milliseconds()
	if g.decisionLog != nil {
		if err := g.decisionLog.Write(decision); err != nil {
			g.logger.Error("decision log write failed", "request_id", decision.RequestID, "error", err)
		}
	}
	g.metrics.Observe(decision, decision.Reason)
}

func mapMatches(matches []rules.Match) []logging.MatchedRule {
	if len(matches) == 0 {
		return nil
	}
	out := make([]logging.MatchedRule, len(matches))
	for i, m := range matches {
		out[i] = logging.MatchedRule{
			ID:        m.RuleID,
			Field:     m.Field,
			Target:    string(m.Target),
			Operator:  m.Operator,
			Automaton: m.Automaton,
			Score:     m.Score,
			Tags:      append([]string(nil), m.Tags...),
			Message:   m.Message,
			Evidence:  m.Evidence,
		}
	}
	return out
}

// readBodyIfNeeded buffers the body for inspection and puts it back for the
// upstream. Without body rules the body is streamed through untouched.
func readBodyIfNeeded(r *http.Request, maxBytes int64, need bool) ([]byte, error) {
	if !need || r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}

	reader := io.Reader(r.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(r.Body, maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, errBodyTooLarge
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	return body, nil
}

func proxyError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
	case errors.As(err, &maxErr):
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
	default:
		http.Error(w, "upstream error", http.StatusBadGateway)
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func blockStatus(site config.Site) int {
	if site.Actions.BlockStatusCode > 0 {
		return site.Actions.BlockStatusCode
	}
	return http.StatusForbidden
}

func blockBody(site config.Site) string {
	if site.Actions.BlockBody != "" {
		return site.Actions.BlockBody
	}
	return "request blocked"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func exceedsHeaderLimit(headers http.Header, maxBytes int64) bool {
	if maxBytes <= 0 {
		return false
	}

	var total int64
	for name, values := range headers {
		for _, value := range values {
			total += int64(len(name) + len(value) + 2)
			if total > maxBytes {
				return true
			}
		}
	}

	return false
}

func maxSiteTimeout(cfg *config.Config) time.Duration {
	var max time.Duration
	for _, site := range cfg.Sites {
		if site.Limits.Timeout > max {
			max = site.Limits.Timeout
		}
	}
	if max <= 0 {
		max = 5 * time.Second
	}
	return max
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
