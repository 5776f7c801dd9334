// Package config loads the connection profiles and runtime settings of the
// bridge from a YAML file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hive-corporation/soarbridge/internal/core/domain"
)

const (
	DefaultConfigPath   = "soarbridge.yaml"
	DefaultListenAddr   = "127.0.0.1:8080"
	DefaultFilesDir     = "/opt/files/shared/integrationsFiles"
	DefaultTemplatesDir = "/opt/files/service/event_files"

	// Host-injected execution window, in epoch milliseconds.
	ExecutionStartEnv = "__execution_start_time_ms"
	ExecutionEndEnv   = "__execution_end_time_ms"
)

// Config is populated once at start-up and passed by reference to every
// integration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	APIToken   string `yaml:"api_token"`
	LogLevel   string `yaml:"log_level"`

	// VerifySSL is the platform-wide TLS verification toggle.
	VerifySSL bool `yaml:"verify_ssl"`

	// Go duration strings, e.g. "30s".
	HTTPTimeout   string `yaml:"http_timeout,omitempty"`
	ActionTimeout string `yaml:"action_timeout,omitempty"`

	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`

	FilesDir     string `yaml:"files_dir"`
	TemplatesDir string `yaml:"templates_dir"`

	Integrations Integrations `yaml:"integrations"`
}

// BreakerConfig is disabled when MaxFailures is zero.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"`
	Timeout     string `yaml:"timeout,omitempty"`
}

// Integrations holds one connection profile per vendor.
type Integrations struct {
	AzureTable  AzureTableProfile  `yaml:"azure_table"`
	LogRhythm   LogRhythmProfile   `yaml:"logrhythm"`
	Securonix   SecuronixProfile   `yaml:"securonix"`
	SentinelOne SentinelOneProfile `yaml:"sentinelone"`
	TrendMicro  TrendMicroProfile  `yaml:"trendmicro"`
	MISP        MISPProfile        `yaml:"misp"`
	Twinwave    TwinwaveProfile    `yaml:"twinwave"`
	VirusTotal  VirusTotalProfile  `yaml:"virustotal"`
	Screenshot  ScreenshotProfile  `yaml:"screenshot"`
}

type AzureTableProfile struct {
	AccountName string `yaml:"account_name"`
	AccessKey   string `yaml:"access_key"`
	Endpoint    string `yaml:"endpoint,omitempty"`
}

func (p AzureTableProfile) Configured() bool {
	return p.AccountName != "" && p.AccessKey != ""
}

// ServiceURL defaults to the public table endpoint of the account.
func (p AzureTableProfile) ServiceURL() string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return fmt.Sprintf("https://%s.table.core.windows.net", p.AccountName)
}

type LogRhythmProfile struct {
	URL      string `yaml:"url"`
	APIToken string `yaml:"api_token"`
}

func (p LogRhythmProfile) Configured() bool { return p.URL != "" && p.APIToken != "" }

type SecuronixProfile struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
	TokenTTL string `yaml:"token_ttl,omitempty"`
}

func (p SecuronixProfile) Configured() bool {
	return p.URL != "" && p.Username != "" && p.Password != ""
}

// GetTokenTTL matches the one-day validity requested at generation.
func (p SecuronixProfile) GetTokenTTL() time.Duration {
	return parseDuration(p.TokenTTL, 24*time.Hour)
}

type SentinelOneProfile struct {
	URL      string `yaml:"url"`
	APIToken string `yaml:"api_token"`
}

func (p SentinelOneProfile) Configured() bool { return p.URL != "" && p.APIToken != "" }

type TrendMicroProfile struct {
	URL             string `yaml:"url"`
	APIToken        string `yaml:"api_token"`
	Service         string `yaml:"service"`
	ServiceProvider string `yaml:"service_provider"`
}

func (p TrendMicroProfile) Configured() bool { return p.URL != "" && p.APIToken != "" }

type MISPProfile struct {
	URL      string `yaml:"url"`
	APIToken string `yaml:"api_token"`
}

func (p MISPProfile) Configured() bool { return p.URL != "" && p.APIToken != "" }

type TwinwaveProfile struct {
	URL          string `yaml:"url,omitempty"`
	APIToken     string `yaml:"api_token"`
	PollInterval string `yaml:"poll_interval,omitempty"`
}

func (p TwinwaveProfile) Configured() bool { return p.APIToken != "" }

func (p TwinwaveProfile) GetURL() string {
	if p.URL == "" {
		return "https://api.twinwave.io/v1"
	}
	return p.URL
}

func (p TwinwaveProfile) GetPollInterval() time.Duration {
	if d := parseDuration(p.PollInterval, 10*time.Second); d > 0 {
		return d
	}
	return 10 * time.Second
}

type VirusTotalProfile struct {
	URL    string `yaml:"url,omitempty"`
	APIKey string `yaml:"api_key"`
}

func (p VirusTotalProfile) Configured() bool { return p.APIKey != "" }

func (p VirusTotalProfile) GetURL() string {
	if p.URL == "" {
		return "https://www.virustotal.com/vtapi/v2"
	}
	return p.URL
}

type ScreenshotProfile struct {
	Disabled   bool   `yaml:"disabled"`
	ChromePath string `yaml:"chrome_path,omitempty"`
}

// Default returns a configuration with every default applied and no vendor
// profile set.
func Default() *Config {
	return &Config{
		ListenAddr:   DefaultListenAddr,
		LogLevel:     "info",
		VerifySSL:    true,
		FilesDir:     DefaultFilesDir,
		TemplatesDir: DefaultTemplatesDir,
	}
}

// Load reads the YAML file at path, or $SOAR_CONFIG, or soarbridge.yaml.
// A missing file is only an error when the path was given explicitly.
// ${VAR} references in the file are expanded from the environment, which
// also receives the values of an optional .env file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	explicit := path != ""
	if path == "" {
		path = getEnv("SOAR_CONFIG", "")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document on top of the defaults, without touching
// the environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("SOAR_LISTEN_ADDR", c.ListenAddr)
	c.APIToken = getEnv("SOAR_API_TOKEN", c.APIToken)
	c.LogLevel = getEnv("SOAR_LOG_LEVEL", c.LogLevel)
	c.FilesDir = getEnv("SOAR_FILES_DIR", c.FilesDir)
	c.TemplatesDir = getEnv("SOAR_TEMPLATES_DIR", c.TemplatesDir)

	if v := os.Getenv("SOAR_VERIFY_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SOAR_VERIFY_SSL %q: %w", v, err)
		}
		c.VerifySSL = b
	}
	return nil
}

// Validate rejects malformed duration strings. Every duration must be
// positive, except action_timeout where zero disables the bound.
func (c *Config) Validate() error {
	durations := []struct {
		name, value string
		allowZero   bool
	}{
		{"http_timeout", c.HTTPTimeout, false},
		{"action_timeout", c.ActionTimeout, true},
		{"circuit_breaker.timeout", c.CircuitBreaker.Timeout, false},
		{"securonix.token_ttl", c.Integrations.Securonix.TokenTTL, false},
		{"twinwave.poll_interval", c.Integrations.Twinwave.PollInterval, false},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		if v < 0 || (v == 0 && !d.allowZero) {
			return fmt.Errorf("invalid %s %q: must be positive", d.name, d.value)
		}
	}
	return nil
}

func (c *Config) GetHTTPTimeout() time.Duration {
	return parseDuration(c.HTTPTimeout, 60*time.Second)
}

// GetActionTimeout returns zero when invocations are only bound by the
// caller's context.
func (c *Config) GetActionTimeout() time.Duration {
	return parseDuration(c.ActionTimeout, 0)
}

func (b BreakerConfig) GetTimeout() time.Duration {
	return parseDuration(b.Timeout, 30*time.Second)
}

// ExecutionWindowFromEnv reads the window the host injects into the process
// environment. ok is false when it is absent or malformed.
func ExecutionWindowFromEnv() (domain.ExecutionWindow, bool) {
	return ParseExecutionWindow(os.Getenv(ExecutionStartEnv), os.Getenv(ExecutionEndEnv))
}

func ParseExecutionWindow(start, end string) (domain.ExecutionWindow, bool) {
	s, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64)
	if err != nil {
		return domain.ExecutionWindow{}, false
	}
	e, err := strconv.ParseInt(strings.TrimSpace(end), 10, 64)
	if err != nil || e < s {
		return domain.ExecutionWindow{}, false
	}
	return domain.ExecutionWindow{StartMs: s, EndMs: e}, true
}

func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
