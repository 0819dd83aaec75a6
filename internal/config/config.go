package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/caseflow/internal/orchestrator"
)

// Environment variables that override values from the config file.
const (
	EnvBaseURL        = "CASEFLOW_BASE_URL"
	EnvRequestTimeout = "CASEFLOW_REQUEST_TIMEOUT"
	EnvPollInterval   = "CASEFLOW_POLL_INTERVAL"
	EnvPollTimeout    = "CASEFLOW_POLL_TIMEOUT"
	EnvStateDir       = "CASEFLOW_STATE_DIR"
	EnvStateBackend   = "CASEFLOW_STATE_BACKEND"
	EnvLogLevel       = "CASEFLOW_LOG_LEVEL"
	EnvLogFormat      = "CASEFLOW_LOG_FORMAT"
)

// State backends.
const (
	BackendFile   = "file"
	BackendKuzu   = "kuzu"
	BackendMemory = "memory"
)

// Config holds client settings loaded from caseflow.yml.
type Config struct {
	BaseURL           string   `yaml:"baseUrl,omitempty"`
	RequestTimeout    string   `yaml:"requestTimeout,omitempty"`
	PollInterval      string   `yaml:"pollInterval,omitempty"`
	PollTimeout       string   `yaml:"pollTimeout,omitempty"`
	StrictValidation  bool     `yaml:"strictValidation,omitempty"`
	Forms             []string `yaml:"forms,omitempty"`
	CarrierName       string   `yaml:"carrierName,omitempty"`
	ResumeConcurrency int      `yaml:"resumeConcurrency,omitempty"`
	RecentCapacity    int      `yaml:"recentCapacity,omitempty"`
	StateDir          string   `yaml:"stateDir,omitempty"`
	StateBackend      string   `yaml:"stateBackend,omitempty"`
	LogLevel          string   `yaml:"logLevel,omitempty"`
	LogFormat         string   `yaml:"logFormat,omitempty"`
}

// Load reads caseflow.yml or caseflow.yaml from dir, applies environment
// overrides and defaults, and validates the result. A missing config file is
// not an error.
func Load(dir string) (*Config, error) {
	cfg := &Config{}
	for _, name := range []string{"caseflow.yml", "caseflow.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies environment overrides and defaults, then validates.
func (c *Config) Finalize() error {
	c.loadEnv()
	c.loadDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() {
	for env, dst := range map[string]*string{
		EnvBaseURL:        &c.BaseURL,
		EnvRequestTimeout: &c.RequestTimeout,
		EnvPollInterval:   &c.PollInterval,
		EnvPollTimeout:    &c.PollTimeout,
		EnvStateDir:       &c.StateDir,
		EnvStateBackend:   &c.StateBackend,
		EnvLogLevel:       &c.LogLevel,
		EnvLogFormat:      &c.LogFormat,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

func (c *Config) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:5000/api"
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "120s"
	}
	if c.PollInterval == "" {
		c.PollInterval = orchestrator.DefaultPollInterval.String()
	}
	if c.PollTimeout == "" {
		c.PollTimeout = orchestrator.DefaultPollTimeout.String()
	}
	if c.ResumeConcurrency == 0 {
		c.ResumeConcurrency = orchestrator.DefaultResumeConcurrency
	}
	if c.RecentCapacity == 0 {
		c.RecentCapacity = 10
	}
	if c.StateDir == "" {
		c.StateDir = defaultStateDir()
	}
	if c.StateBackend == "" {
		c.StateBackend = BackendFile
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks the finalized values.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("invalid baseUrl %q: must be an http(s) URL", c.BaseURL)
	}
	for name, v := range map[string]string{
		"requestTimeout": c.RequestTimeout,
		"pollInterval":   c.PollInterval,
		"pollTimeout":    c.PollTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	if c.ResumeConcurrency < 0 {
		return fmt.Errorf("invalid resumeConcurrency: %d", c.ResumeConcurrency)
	}
	if c.RecentCapacity < 0 {
		return fmt.Errorf("invalid recentCapacity: %d", c.RecentCapacity)
	}
	switch c.StateBackend {
	case BackendFile, BackendKuzu, BackendMemory:
	default:
		return fmt.Errorf("invalid stateBackend %q: want file, kuzu or memory", c.StateBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logFormat %q: want text or json", c.LogFormat)
	}
	return nil
}

// RequestTimeoutDuration returns RequestTimeout as a time.Duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// Pipeline returns the orchestrator settings carried by c.
func (c *Config) Pipeline() orchestrator.Config {
	interval, _ := time.ParseDuration(c.PollInterval)
	timeout, _ := time.ParseDuration(c.PollTimeout)
	return orchestrator.Config{
		PollInterval:      interval,
		PollTimeout:       timeout,
		StrictValidation:  c.StrictValidation,
		Forms:             c.Forms,
		CarrierName:       c.CarrierName,
		ResumeConcurrency: c.ResumeConcurrency,
	}
}

// Set assigns a single key from a "key=value" override, as given on the
// command line. Keys use the YAML names.
func (c *Config) Set(key, value string) error {
	switch key {
	case "baseUrl":
		c.BaseURL = value
	case "requestTimeout":
		c.RequestTimeout = value
	case "pollInterval":
		c.PollInterval = value
	case "pollTimeout":
		c.PollTimeout = value
	case "strictValidation":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: strictValidation: %w", err)
		}
		c.StrictValidation = b
	case "carrierName":
		c.CarrierName = value
	case "forms":
		c.Forms = strings.Split(value, ",")
	case "stateDir":
		c.StateDir = value
	case "stateBackend":
		c.StateBackend = value
	case "logLevel":
		c.LogLevel = value
	case "logFormat":
		c.LogFormat = value
	default:
		return fmt.Errorf("config: unknown key %q", key)
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "caseflow")
	}
	return ".caseflow"
}
