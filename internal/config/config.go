package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultURL        = "http://127.0.0.1:8765/mcp/"
	DefaultTimeout    = 30 * time.Second
	DefaultSessionTTL = 300 * time.Second
	DefaultLogLevel   = "warn"
)

// Config holds application configuration. It is resolved once at startup
// and treated as read-only afterwards.
type Config struct {
	// URL is the remote MCP endpoint.
	URL string `yaml:"url"`

	// Timeout bounds every remote call.
	Timeout Duration `yaml:"timeout"`

	// Token is sent as a bearer token. Read from the token file or
	// AGENT_MAIL_TOKEN, never from config.yaml.
	Token string `yaml:"-"`

	// DBPath is the server's SQLite mirror used by the fast read path.
	DBPath string `yaml:"db_path"`

	// SessionsDir holds one subdirectory of session files per project.
	SessionsDir string `yaml:"sessions_dir"`

	// SessionTTL is the default lifetime of a session claim.
	SessionTTL Duration `yaml:"session_ttl"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// DisabledTools lists local MCP tool names to leave unregistered.
	DisabledTools []string `yaml:"disabled_tools"`
}

// Duration accepts either a number of seconds or a Go duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration parses "30", "2.5" (seconds) or "45s", "5m".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// LookupEnv matches os.LookupEnv so tests can supply a fake environment.
type LookupEnv func(key string) (string, bool)

// DefaultDir returns ~/.config/agent-mail.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "agent-mail"), nil
}

// DefaultConfig returns the built-in defaults. Paths are rooted at home.
func DefaultConfig(home string) *Config {
	return &Config{
		URL:         DefaultURL,
		Timeout:     Duration(DefaultTimeout),
		DBPath:      filepath.Join(home, ".mcp_agent_mail_git_mailbox_repo", "storage.sqlite3"),
		SessionsDir: filepath.Join(home, ".config", "agent-mail", "sessions"),
		SessionTTL:  Duration(DefaultSessionTTL),
		LogLevel:    DefaultLogLevel,
	}
}

// Load resolves configuration: defaults, then the legacy configDir/config
// key=value file, then configDir/config.yaml, then configDir/token, then
// environment variables. Missing files are skipped.
func Load(home, configDir string, env LookupEnv) (*Config, error) {
	if env == nil {
		env = os.LookupEnv
	}

	legacy, err := loadLegacyFile(filepath.Join(configDir, "config"))
	if err != nil {
		return nil, err
	}

	file, err := loadFileRaw(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	file = Merge(legacy, file)

	token, err := loadToken(filepath.Join(configDir, "token"))
	if err != nil {
		return nil, err
	}
	file.Token = token

	fromEnv, err := loadEnv(env)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(home), file), fromEnv), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	cfg.Token = ""
	return cfg, nil
}

// loadLegacyFile reads the older key=value config file. Only url and
// timeout are recognized; blank lines, # comments and other keys are skipped.
func loadLegacyFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "url":
			cfg.URL = value
		case "timeout":
			d, err := ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("parse %s: line %d: %w", path, i+1, err)
			}
			cfg.Timeout = Duration(d)
		}
	}
	return cfg, nil
}

// loadToken reads the bearer token file. Missing file means no token.
func loadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// loadEnv builds the environment layer.
func loadEnv(env LookupEnv) (*Config, error) {
	cfg := &Config{}

	if v, ok := env("AGENT_MAIL_URL"); ok {
		cfg.URL = strings.TrimSpace(v)
	}
	if v, ok := env("AGENT_MAIL_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("AGENT_MAIL_TIMEOUT: %w", err)
		}
		cfg.Timeout = Duration(d)
	}
	if v, ok := env("AGENT_MAIL_TOKEN"); ok {
		cfg.Token = strings.TrimSpace(v)
	}
	if v, ok := env("AGENT_MAIL_DB"); ok {
		cfg.DBPath = strings.TrimSpace(v)
	}
	if v, ok := env("AGENT_MAIL_SESSIONS_DIR"); ok {
		cfg.SessionsDir = strings.TrimSpace(v)
	}
	if v, ok := env("AGENT_MAIL_LOG_LEVEL"); ok {
		cfg.LogLevel = strings.TrimSpace(v)
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence when non-zero.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.URL = overlay.URL
	if result.URL == "" {
		result.URL = base.URL
	}

	result.Timeout = overlay.Timeout
	if result.Timeout == 0 {
		result.Timeout = base.Timeout
	}

	result.Token = overlay.Token
	if result.Token == "" {
		result.Token = base.Token
	}

	result.DBPath = overlay.DBPath
	if result.DBPath == "" {
		result.DBPath = base.DBPath
	}

	result.SessionsDir = overlay.SessionsDir
	if result.SessionsDir == "" {
		result.SessionsDir = base.SessionsDir
	}

	result.SessionTTL = overlay.SessionTTL
	if result.SessionTTL == 0 {
		result.SessionTTL = base.SessionTTL
	}

	result.LogLevel = overlay.LogLevel
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice unions a and b, trimming and dropping blanks and
// duplicates. Returns nil when nothing remains.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// Level maps LogLevel to a slog level. Unknown values fall back to warn.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
