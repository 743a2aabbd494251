package config

import "time"

type Config struct {
	ConfigVersion int           `yaml:"configVersion"`
	Server        ServerConfig  `yaml:"server"`
	Upstreams     []Upstream    `yaml:"upstreams"`
	Automata      []Automaton   `yaml:"automata"`
	Sites         []Site        `yaml:"sites"`
	Logging       LoggingConfig `yaml:"logging"`
	Metrics       MetricsConfig `yaml:"metrics"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen string    `yaml:"listen"`
	TLS    TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

type Upstream struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Automaton declares a compiled automaton file and the name rules use to
// refer to it.
type Automaton struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

type Site struct {
	Name             string     `yaml:"name"`
	Match            SiteMatch  `yaml:"match"`
	Upstream         string     `yaml:"upstream"`
	Mode             string     `yaml:"mode"`
	AnomalyThreshold int        `yaml:"anomalyThreshold"`
	Limits           Limits     `yaml:"limits"`
	Actions          ActionSpec `yaml:"actions"`
	Rules            []Rule     `yaml:"rules"`
}

type SiteMatch struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

type Limits struct {
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
	MaxHeaderBytes int64         `yaml:"maxHeaderBytes"`
	Timeout        time.Duration `yaml:"timeout"`
}

type ActionSpec struct {
	BlockStatusCode int    `yaml:"blockStatusCode"`
	BlockBody       string `yaml:"blockBody"`
}

type Rule struct {
	ID         string   `yaml:"id"`
	Target     string   `yaml:"target"`
	Operator   string   `yaml:"operator"`
	Automaton  string   `yaml:"automaton"`
	Score      int      `yaml:"score"`
	Tags       []string `yaml:"tags"`
	Transforms []string `yaml:"transforms"`
	Msg        string   `yaml:"msg"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DecisionLog string `yaml:"decisionLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

const (
	ModeEnforce = "enforce"
	ModeDetect  = "detect"
	ModeOff     = "off"
)

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}
