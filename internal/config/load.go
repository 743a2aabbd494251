package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = ":8080"
	defaultMaxBodyBytes   = 1 << 20
	defaultMaxHeaderBytes = 32 << 10
	defaultTimeout        = 10 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultMetricsListen  = ":9090"
	defaultRuleOperator   = "ee"
	defaultSiteMode       = ModeDetect
	defaultThreshold      = 5
)

// Load reads a YAML config. Unknown keys are rejected so that a misspelled
// directive does not silently disable a rule.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.baseDir = filepath.Dir(absPath)

	return cfg, nil
}

// Parse decodes a config document and fills defaults. Relative paths in the
// result resolve against the working directory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = defaultMetricsListen
	}

	for i := range c.Sites {
		site := &c.Sites[i]
		if site.Mode == "" {
			site.Mode = defaultSiteMode
		}
		if site.AnomalyThreshold == 0 {
			site.AnomalyThreshold = defaultThreshold
		}
		if site.Match.PathPrefix == "" {
			site.Match.PathPrefix = "/"
		}
		if site.Limits.MaxBodyBytes == 0 {
			site.Limits.MaxBodyBytes = defaultMaxBodyBytes
		}
		if site.Limits.MaxHeaderBytes == 0 {
			site.Limits.MaxHeaderBytes = defaultMaxHeaderBytes
		}
		if site.Limits.Timeout == 0 {
			site.Limits.Timeout = defaultTimeout
		}
		for j := range site.Rules {
			if site.Rules[j].Operator == "" {
				site.Rules[j].Operator = defaultRuleOperator
			}
		}
	}
}

func (c *Config) resolvePath(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}
