package internal

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

// Config holds the client settings
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	StateDir    string        `yaml:"-"`
	CacheDir    string        `yaml:"cache_dir,omitempty"`
	Transport   string        `yaml:"transport"`
	Model       string        `yaml:"model,omitempty"`
	Temperature float64       `yaml:"temperature"`
	Mode        string        `yaml:"mode"`
}

// DefaultConfig returns the built-in settings
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8080",
		Timeout:     30 * time.Second,
		Transport:   TransportSSE,
		Temperature: 0.7,
		Mode:        ModeChat,
	}
}

// LoadConfig resolves the configuration. Later sources win: defaults,
// config.yaml in the state directory, .env files, the process environment.
// stateDir overrides COPILOT_STATE_DIR and OS detection when non-empty.
func LoadConfig(stateDir string, envFiles ...string) (Config, error) {
	cfg := DefaultConfig()

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	env, err := readEnvFiles(envFiles)
	if err != nil {
		return cfg, err
	}

	if stateDir == "" {
		stateDir = env("COPILOT_STATE_DIR")
	}
	paths, err := GetStatePaths(stateDir)
	if err != nil {
		return cfg, err
	}
	cfg.StateDir = paths.StateDir

	if err := cfg.loadFile(paths.ConfigPath()); err != nil {
		return cfg, err
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = paths.CacheDir
	}

	if err := cfg.applyEnv(env); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	LogDebug("Loaded config from %s", path)
	return nil
}

// readEnvFiles returns a lookup preferring the process environment over
// values from the given .env files. Missing files are ignored.
func readEnvFiles(files []string) (func(string) string, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	fileVals := map[string]string{}
	if len(existing) > 0 {
		vals, err := godotenv.Read(existing...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read .env")
		}
		fileVals = vals
	}

	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(fileVals[key])
	}, nil
}

func (c *Config) applyEnv(env func(string) string) error {
	c.BaseURL = getEnvOrDefault(env, "COPILOT_BASE_URL", c.BaseURL)
	c.Transport = getEnvOrDefault(env, "COPILOT_TRANSPORT", c.Transport)
	c.Model = getEnvOrDefault(env, "COPILOT_MODEL", c.Model)
	c.Mode = getEnvOrDefault(env, "COPILOT_MODE", c.Mode)

	if raw := env("COPILOT_TIMEOUT"); raw != "" {
		timeout, err := ParseTimeout(raw)
		if err != nil {
			return &ValidationError{Field: "COPILOT_TIMEOUT", Reason: err.Error()}
		}
		c.Timeout = timeout
	}

	if raw := env("COPILOT_TEMPERATURE"); raw != "" {
		temp, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &ValidationError{Field: "COPILOT_TEMPERATURE", Reason: err.Error()}
		}
		c.Temperature = temp
	}
	return nil
}

func getEnvOrDefault(env func(string) string, key, fallback string) string {
	if v := env(key); v != "" {
		return v
	}
	return fallback
}

// ParseTimeout accepts a Go duration or a plain number of seconds
func ParseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

// Validate checks the settings for consistency
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "base_url", Reason: "must be an http(s) URL"}
	}
	if c.Timeout <= 0 {
		return &ValidationError{Field: "timeout", Reason: "must be positive"}
	}
	if c.Transport != TransportSSE && c.Transport != TransportWebSocket {
		return &ValidationError{Field: "transport", Reason: "must be sse or ws"}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return &ValidationError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	if !ValidChatMode(c.Mode) {
		return &ValidationError{Field: "mode", Reason: "unknown chat mode " + c.Mode}
	}
	return nil
}

// Save writes the persistable settings to config.yaml in the state directory
func (c Config) Save() error {
	paths, err := GetStatePaths(c.StateDir)
	if err != nil {
		return err
	}
	if err := paths.EnsureStateDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return os.WriteFile(paths.ConfigPath(), data, 0600)
}
