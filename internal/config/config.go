package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirName is the name of both the global (~/.miroyo) and repo (.miroyo)
// configuration directories.
const DirName = ".miroyo"

// Rate limit store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey         = "GEMINI_API_KEY"
	EnvModel          = "MIROYO_MODEL"
	EnvRateLimitStore = "MIROYO_RATE_LIMIT_STORE"
)

// Config holds application configuration.
type Config struct {
	// APIKey is the model credential. It is only ever read from the
	// environment and is never serialized.
	APIKey string `json:"-"`

	// Model is the Gemini model name.
	Model string `json:"model,omitempty"`

	// Temperature is the sampling temperature. Nil means the default;
	// a pointer so an explicit 0 survives Merge.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxOutputTokens caps the model response.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// ModelTimeoutSeconds bounds one upstream call, including the wait
	// for a concurrency slot.
	ModelTimeoutSeconds int `json:"model_timeout_seconds,omitempty"`

	// MaxConcurrentCalls bounds in-flight upstream calls per process.
	MaxConcurrentCalls int `json:"max_concurrent_calls,omitempty"`

	// MaxInputChars is the longest accepted input text, in characters.
	MaxInputChars int `json:"max_input_chars,omitempty"`

	// SystemPromptPath replaces the built-in DJ instruction with a file.
	SystemPromptPath string `json:"system_prompt_path,omitempty"`

	// RateLimitRequests is the number of requests admitted per window.
	RateLimitRequests int `json:"rate_limit_requests,omitempty"`

	// RateLimitWindowSeconds is the window length, measured from the
	// first request in it.
	RateLimitWindowSeconds int `json:"rate_limit_window_seconds,omitempty"`

	// RateLimitStore selects the counter backend: "memory" (per process)
	// or "sqlite" (shared by every process using ~/.miroyo/miroyo.db).
	RateLimitStore string `json:"rate_limit_store,omitempty"`

	// Bind and Port are the HTTP listen address for `miroyo serve`.
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	// BaseURL is the public origin used to build share links.
	BaseURL string `json:"base_url,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// All tools are enabled by default. Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// All tools belonging to disabled types are excluded from registration.
	// Known types: "achievement", "share". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultTemperature is the sampling temperature used when none is configured.
const DefaultTemperature = 0.7

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	temp := DefaultTemperature
	return &Config{
		Model:                  "gemini-2.5-flash",
		Temperature:            &temp,
		MaxOutputTokens:        2048,
		ModelTimeoutSeconds:    15,
		MaxConcurrentCalls:     8,
		MaxInputChars:          1000,
		RateLimitRequests:      20,
		RateLimitWindowSeconds: 60,
		RateLimitStore:         StoreMemory,
		Bind:                   "127.0.0.1",
		Port:                   8080,
		BaseURL:                "http://localhost:8080",
	}
}

// ModelTimeout returns the upstream budget as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// RateLimitWindow returns the rate limit window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.RateLimitStore {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("rate_limit_store must be %q or %q, got %q", StoreMemory, StoreSQLite, c.RateLimitStore)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *c.Temperature)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.miroyo.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.miroyo) and repo (.miroyo) directories.
// Repo config is found by walking upward from startDir to find the nearest .miroyo/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	// Walk upward from startDir to find repo config
	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .miroyo/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overlays environment settings on cfg. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvAPIKey)); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		cfg.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvRateLimitStore)); v != "" {
		cfg.RateLimitStore = strings.ToLower(v)
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, return zero config
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.APIKey = pick(overlay.APIKey, base.APIKey)
	result.Model = pick(overlay.Model, base.Model)
	result.SystemPromptPath = pick(overlay.SystemPromptPath, base.SystemPromptPath)
	result.RateLimitStore = pick(overlay.RateLimitStore, base.RateLimitStore)
	result.Bind = pick(overlay.Bind, base.Bind)
	result.BaseURL = pick(overlay.BaseURL, base.BaseURL)

	result.MaxOutputTokens = pick(overlay.MaxOutputTokens, base.MaxOutputTokens)
	result.ModelTimeoutSeconds = pick(overlay.ModelTimeoutSeconds, base.ModelTimeoutSeconds)
	result.MaxConcurrentCalls = pick(overlay.MaxConcurrentCalls, base.MaxConcurrentCalls)
	result.MaxInputChars = pick(overlay.MaxInputChars, base.MaxInputChars)
	result.RateLimitRequests = pick(overlay.RateLimitRequests, base.RateLimitRequests)
	result.RateLimitWindowSeconds = pick(overlay.RateLimitWindowSeconds, base.RateLimitWindowSeconds)
	result.Port = pick(overlay.Port, base.Port)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Pointers: overlay wins if set, so an explicit zero is kept
	result.Temperature = base.Temperature
	if overlay.Temperature != nil {
		result.Temperature = overlay.Temperature
	}

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
