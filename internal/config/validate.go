package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/klyr/eudoxus/internal/eudoxus"
	"github.com/klyr/eudoxus/internal/fields"
	"github.com/klyr/eudoxus/internal/normalize"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			v.Add("server.tls.certFile required when tls.enabled is true")
		} else if err := requireFile(c.resolvePath(c.Server.TLS.CertFile)); err != nil {
			v.Add("server.tls.certFile invalid: %v", err)
		}
		if c.Server.TLS.KeyFile == "" {
			v.Add("server.tls.keyFile required when tls.enabled is true")
		} else if err := requireFile(c.resolvePath(c.Server.TLS.KeyFile)); err != nil {
			v.Add("server.tls.keyFile invalid: %v", err)
		}
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.Add("logging.level must be debug|info|warn|error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		v.Add("logging.format must be text|json")
	}

	upstreamNames := map[string]struct{}{}
	for i, upstream := range c.Upstreams {
		if upstream.Name == "" {
			v.Add("upstreams[%d].name is required", i)
		} else if _, exists := upstreamNames[upstream.Name]; exists {
			v.Add("upstreams[%d].name %q is duplicated", i, upstream.Name)
		} else {
			upstreamNames[upstream.Name] = struct{}{}
		}

		if upstream.URL == "" {
			v.Add("upstreams[%d].url is required", i)
		} else if err := validateURL(upstream.URL); err != nil {
			v.Add("upstreams[%d].url invalid: %v", i, err)
		}
	}

	automatonNames := map[string]struct{}{}
	for i, a := range c.Automata {
		if a.Name == "" {
			v.Add("automata[%d].name is required", i)
		} else if _, exists := automatonNames[a.Name]; exists {
			v.Add("automata[%d].name %q is duplicated", i, a.Name)
		} else {
			automatonNames[a.Name] = struct{}{}
		}

		if a.Path == "" {
			v.Add("automata[%d].path is required", i)
		} else if err := requireFile(c.resolvePath(a.Path)); err != nil {
			v.Add("automata[%d].path invalid: %v", i, err)
		}
	}

	siteNames := map[string]struct{}{}
	for i, site := range c.Sites {
		prefix := fmt.Sprintf("sites[%d]", i)
		if site.Name == "" {
			v.Add("%s.name is required", prefix)
		} else if _, exists := siteNames[site.Name]; exists {
			v.Add("%s.name %q is duplicated", prefix, site.Name)
		} else {
			siteNames[site.Name] = struct{}{}
		}

		if !strings.HasPrefix(site.Match.PathPrefix, "/") {
			v.Add("%s.match.pathPrefix must start with /", prefix)
		}
		if site.Upstream != "" {
			if _, exists := upstreamNames[site.Upstream]; !exists {
				v.Add("%s.upstream %q does not exist", prefix, site.Upstream)
			}
		}

		switch site.Mode {
		case ModeEnforce, ModeDetect, ModeOff:
		default:
			v.Add("%s.mode must be enforce|detect|off", prefix)
		}
		if site.AnomalyThreshold < 0 {
			v.Add("%s.anomalyThreshold must be >= 0", prefix)
		}
		if site.Limits.MaxBodyBytes <= 0 {
			v.Add("%s.limits.maxBodyBytes must be > 0", prefix)
		}
		if site.Limits.MaxHeaderBytes <= 0 {
			v.Add("%s.limits.maxHeaderBytes must be > 0", prefix)
		}
		if site.Limits.Timeout <= 0 {
			v.Add("%s.limits.timeout must be > 0", prefix)
		}

		validateRules(v, prefix, site.Rules, automatonNames)
	}

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func validateRules(v *ValidationError, prefix string, rules []Rule, automata map[string]struct{}) {
	ruleIDs := map[string]struct{}{}
	for j, rule := range rules {
		name := fmt.Sprintf("%s.rules[%d]", prefix, j)
		if rule.ID == "" {
			v.Add("%s.id is required", name)
		} else if _, exists := ruleIDs[rule.ID]; exists {
			v.Add("%s.id %q is duplicated", name, rule.ID)
		} else {
			ruleIDs[rule.ID] = struct{}{}
		}

		if _, err := fields.ParseTarget(rule.Target); err != nil {
			v.Add("%s.target invalid: %v", name, err)
		}
		if _, err := eudoxus.ParsePolicy(rule.Operator); err != nil {
			v.Add("%s.operator invalid: %v", name, err)
		}

		if rule.Automaton == "" {
			v.Add("%s.automaton is required", name)
		} else if _, exists := automata[rule.Automaton]; !exists {
			v.Add("%s.automaton %q is not declared in automata", name, rule.Automaton)
		}

		for _, t := range rule.Transforms {
			if _, err := normalize.ParseTransform(t); err != nil {
				v.Add("%s.transforms invalid: %v", name, err)
			}
		}
	}
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
