package gateway

import (
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/klyr/eudoxus/internal/config"
)

// Route points a host and path prefix at a site.
type Route struct {
	Site       string
	Host       string
	PathPrefix string
	order      int
}

type Router struct {
	routes []Route
}

// NewRouter orders sites so the longest path prefix wins, and a site bound
// to a host wins over a catch-all with the same prefix.
func NewRouter(cfg *config.Config) (*Router, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	routes := make([]Route, 0, len(cfg.Sites))
	for i, site := range cfg.Sites {
		routes = append(routes, Route{
			Site:       site.Name,
			Host:       strings.ToLower(strings.TrimSpace(site.Match.Host)),
			PathPrefix: site.Match.PathPrefix,
			order:      i,
		})
	}

	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if len(a.PathPrefix) != len(b.PathPrefix) {
			return len(a.PathPrefix) > len(b.PathPrefix)
		}
		if (a.Host == "") != (b.Host == "") {
			return a.Host != ""
		}
		return a.order < b.order
	})

	return &Router{routes: routes}, nil
}

func (r *Router) Match(req *http.Request) (Route, bool) {
	if req == nil || req.URL == nil {
		return Route{}, false
	}

	host := strings.ToLower(stripPort(req.Host))
	path := req.URL.Path

	for _, route := range r.routes {
		if route.Host != "" && route.Host != host {
			continue
		}
		if strings.HasPrefix(path, route.PathPrefix) {
			return route, true
		}
	}

	return Route{}, false
}

func stripPort(hostport string) string {
	if hostport == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	return hostport
}
