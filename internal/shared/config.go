package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Transfer    TransferConfig    `toml:"transfer"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
	OpenAI  OpenAIConfig  `toml:"openai"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
}

// YouTubeConfig contains YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL string `toml:"proxy_url"`
	AuthFile string `toml:"auth_file"`
}

// OpenAIConfig contains settings for the disambiguation service.
type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// TransferConfig tunes the matching fan-out and upstream call policy.
type TransferConfig struct {
	Workers            int     `toml:"workers"`
	SearchLimit        int     `toml:"search_limit"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	MaxAttempts        int     `toml:"max_attempts"`
	CallTimeoutSeconds int     `toml:"call_timeout_seconds"`
	AITimeoutSeconds   int     `toml:"ai_timeout_seconds"`
	DeadlineSeconds    int     `toml:"deadline_seconds"`
	DrainSeconds       int     `toml:"drain_seconds"`
	FuzzyThreshold     float64 `toml:"fuzzy_threshold"`
	FuzzyMargin        float64 `toml:"fuzzy_margin"`
}

// RateLimitConfig controls the per-identity transfer quota.
type RateLimitConfig struct {
	MaxTransfers  int    `toml:"max_transfers"`
	WindowMinutes int    `toml:"window_minutes"`
	StorePath     string `toml:"store_path"`
}

// CallTimeout returns the per-call timeout for upstream requests.
func (t TransferConfig) CallTimeout() time.Duration {
	return time.Duration(t.CallTimeoutSeconds) * time.Second
}

// AITimeout returns the per-call timeout for the disambiguation service.
func (t TransferConfig) AITimeout() time.Duration {
	return time.Duration(t.AITimeoutSeconds) * time.Second
}

// Deadline returns the overall transfer deadline.
func (t TransferConfig) Deadline() time.Duration {
	return time.Duration(t.DeadlineSeconds) * time.Second
}

// Drain returns the grace period for in-flight work after the deadline expires.
func (t TransferConfig) Drain() time.Duration {
	return time.Duration(t.DrainSeconds) * time.Second
}

// Window returns the rate-limit window size.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
