package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the tripmatch API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Selector     SelectorConfig     `yaml:"selector"`
	Ranking      RankingConfig      `yaml:"ranking"`
	Conversation ConversationConfig `yaml:"conversation"`
	Auth         AuthConfig         `yaml:"auth"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings. When addrs is empty
// the service runs on in-memory stores (tests, local demos).
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// CapabilitiesConfig holds the external capability providers and the
// priority-ordered fallback chains per capability task.
type CapabilitiesConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Chains    ChainsConfig              `yaml:"chains"`
}

// ProviderConfig holds connection settings for one capability provider
// (an OpenAI-compatible endpoint).
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ChainsConfig holds one ordered attempt list per capability task.
type ChainsConfig struct {
	Extract []AttemptConfig `yaml:"extract"`
	Rank    []AttemptConfig `yaml:"rank"`
	Compose []AttemptConfig `yaml:"compose"`
	Embed   []AttemptConfig `yaml:"embed"`
}

// AttemptConfig is one provider attempt in a fallback chain.
type AttemptConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Dimensions  int     `yaml:"dimensions"` // embed task only
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// SelectorConfig holds the scale-tier thresholds for candidate selection.
// The thresholds are deployment-tunable constants, not behavior.
type SelectorConfig struct {
	SmallMaxCatalog int `yaml:"small_max_catalog"` // at or below: structured filtering only
	LargeMinCatalog int `yaml:"large_min_catalog"` // at or above: prefilter before vector search
	TopK            int `yaml:"top_k"`
	MaxCandidates   int `yaml:"max_candidates"`
}

// RankingConfig holds ranking call settings.
type RankingConfig struct {
	MaxOffers   int `yaml:"max_offers"`
	TokenBudget int `yaml:"token_budget"`
}

// ConversationConfig holds conversation memory settings.
type ConversationConfig struct {
	MaxHistory int `yaml:"max_history"`
	TTLHours   int `yaml:"ttl_hours"` // 0 = no expiry (expiry is an operator concern)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Streaming replies hold the connection open far longer than a
		// plain API response.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Selector.SmallMaxCatalog <= 0 {
		c.Selector.SmallMaxCatalog = 50
	}
	if c.Selector.LargeMinCatalog <= 0 {
		c.Selector.LargeMinCatalog = 5000
	}
	if c.Selector.TopK <= 0 {
		c.Selector.TopK = 20
	}
	if c.Selector.TopK < 10 {
		c.Selector.TopK = 10
	}
	if c.Selector.MaxCandidates <= 0 {
		c.Selector.MaxCandidates = 50
	}
	if c.Ranking.MaxOffers <= 0 {
		c.Ranking.MaxOffers = 3
	}
	if c.Ranking.TokenBudget <= 0 {
		c.Ranking.TokenBudget = 3000
	}
	if c.Conversation.MaxHistory <= 0 {
		c.Conversation.MaxHistory = 20
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "tripmatch:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Selector.SmallMaxCatalog >= c.Selector.LargeMinCatalog {
		return fmt.Errorf("selector.small_max_catalog (%d) must be below selector.large_min_catalog (%d)",
			c.Selector.SmallMaxCatalog, c.Selector.LargeMinCatalog)
	}
	chains := map[string][]AttemptConfig{
		"extract": c.Capabilities.Chains.Extract,
		"rank":    c.Capabilities.Chains.Rank,
		"compose": c.Capabilities.Chains.Compose,
		"embed":   c.Capabilities.Chains.Embed,
	}
	for task, attempts := range chains {
		for i, a := range attempts {
			if a.Provider == "" {
				return fmt.Errorf("capabilities.chains.%s[%d].provider is required", task, i)
			}
			if _, ok := c.Capabilities.Providers[a.Provider]; !ok {
				return fmt.Errorf("capabilities.chains.%s[%d] references unknown provider %q", task, i, a.Provider)
			}
			if a.Model == "" {
				return fmt.Errorf("capabilities.chains.%s[%d].model is required", task, i)
			}
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
