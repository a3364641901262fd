// Package config provides configuration management for the X automation tool.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the automation tool
type Config struct {
	// X account credentials
	Account AccountConfig `yaml:"account"`

	// Browser configuration
	Browser BrowserConfig `yaml:"browser"`

	// Stealth settings for anti-detection
	Stealth StealthConfig `yaml:"stealth"`

	// Delay model tuning
	Delays DelayConfig `yaml:"delays"`

	// Filler-action gating and durations
	Filler FillerConfig `yaml:"filler"`

	// Search configuration
	Search SearchConfig `yaml:"search"`

	// Slack notification settings
	Notify NotifyConfig `yaml:"notify"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// AccountConfig holds X credentials
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrowserConfig holds browser automation settings
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	UserDataDir    string `yaml:"user_data_dir"`
	SlowMotion     int    `yaml:"slow_motion_ms"`
	Timeout        int    `yaml:"timeout_seconds"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	BrowserPath    string `yaml:"browser_path"`
}

// StealthConfig holds anti-detection settings
type StealthConfig struct {
	// Pointer movement settings
	PointerStepsMin      int     `yaml:"pointer_steps_min"`
	PointerStepsMax      int     `yaml:"pointer_steps_max"`
	PointerJitterPx      float64 `yaml:"pointer_jitter_px"`
	HesitationChance     float64 `yaml:"hesitation_chance"`

	// Typing settings
	TypingDelayMin    int     `yaml:"typing_delay_min_ms"`
	TypingDelayMax    int     `yaml:"typing_delay_max_ms"`
	TypingMistakeRate float64 `yaml:"typing_mistake_rate"`

	// Scrolling settings
	ScrollSpeedMin   int     `yaml:"scroll_speed_min"`
	ScrollSpeedMax   int     `yaml:"scroll_speed_max"`
	ScrollBackChance float64 `yaml:"scroll_back_chance"`

	// Fingerprint masking
	RandomizeViewport bool `yaml:"randomize_viewport"`
	DisableWebdriver  bool `yaml:"disable_webdriver"`
	RandomUserAgent   bool `yaml:"random_user_agent"`
}

// DelayConfig holds delay model settings. All durations are seconds.
type DelayConfig struct {
	VariationFactor     float64 `yaml:"variation_factor"`
	MinimumSeconds      float64 `yaml:"minimum_seconds"`
	BurstWindowSeconds  float64 `yaml:"burst_window_seconds"`
	ConsecutiveLimit    int     `yaml:"consecutive_limit"`
	ConsecutivePenalty  float64 `yaml:"consecutive_penalty"`
	InterPostMinSeconds float64 `yaml:"inter_post_min_seconds"`
	InterPostMaxSeconds float64 `yaml:"inter_post_max_seconds"`
}

// FillerConfig holds filler-action probabilities and duration ranges.
// The gate probabilities are empirically chosen tuning knobs.
type FillerConfig struct {
	Enabled bool `yaml:"enabled"`

	HomeBrowsingChance   float64 `yaml:"home_browsing_chance"`
	PostReadingChance    float64 `yaml:"post_reading_chance"`
	ReplyCheckingChance  float64 `yaml:"reply_checking_chance"`
	PreActionWaitChance  float64 `yaml:"pre_action_wait_chance"`
	PostActionWaitChance float64 `yaml:"post_action_wait_chance"`
	DoubleCheckChance    float64 `yaml:"double_check_chance"`
	ShuffleChance        float64 `yaml:"shuffle_chance"`

	HomeScrollCountMin     int     `yaml:"home_scroll_count_min"`
	HomeScrollCountMax     int     `yaml:"home_scroll_count_max"`
	PostReadingDurationMin float64 `yaml:"post_reading_duration_min"`
	PostReadingDurationMax float64 `yaml:"post_reading_duration_max"`
	ReplyCheckCountMin     int     `yaml:"reply_check_count_min"`
	ReplyCheckCountMax     int     `yaml:"reply_check_count_max"`
	PreActionWaitMin       float64 `yaml:"pre_action_wait_min"`
	PreActionWaitMax       float64 `yaml:"pre_action_wait_max"`
	PostActionWaitMin      float64 `yaml:"post_action_wait_min"`
	PostActionWaitMax      float64 `yaml:"post_action_wait_max"`
}

// SearchConfig holds search-related settings
type SearchConfig struct {
	Keywords           []string `yaml:"keywords"`
	IncludeDate        bool     `yaml:"include_date"`
	MaxPostsPerSession int      `yaml:"max_posts_per_session"`
	MaxScrollAttempts  int      `yaml:"max_scroll_attempts"`
}

// NotifyConfig holds Slack webhook notification settings
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	Workspace string `yaml:"workspace"`
}

// StorageConfig holds data persistence settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	CookiesPath  string `yaml:"cookies_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			Username: "",
			Password: "",
		},
		Browser: BrowserConfig{
			Headless:       true,
			UserDataDir:    "./data/browser",
			SlowMotion:     0,
			Timeout:        60,
			ViewportWidth:  1366,
			ViewportHeight: 768,
		},
		Stealth: StealthConfig{
			PointerStepsMin:   12,
			PointerStepsMax:   28,
			PointerJitterPx:   3.0,
			HesitationChance:  0.15,
			TypingDelayMin:    50,
			TypingDelayMax:    200,
			TypingMistakeRate: 0.05,
			ScrollSpeedMin:    100,
			ScrollSpeedMax:    400,
			ScrollBackChance:  0.15,
			RandomizeViewport: true,
			DisableWebdriver:  true,
			RandomUserAgent:   true,
		},
		Delays: DelayConfig{
			VariationFactor:     0.5,
			MinimumSeconds:      0.1,
			BurstWindowSeconds:  2.0,
			ConsecutiveLimit:    3,
			ConsecutivePenalty:  0.2,
			InterPostMinSeconds: 10.0,
			InterPostMaxSeconds: 30.0,
		},
		Filler: FillerConfig{
			Enabled:                true,
			HomeBrowsingChance:     0.9,
			PostReadingChance:      0.95,
			ReplyCheckingChance:    0.7,
			PreActionWaitChance:    0.8,
			PostActionWaitChance:   0.9,
			DoubleCheckChance:      0.1,
			ShuffleChance:          0.3,
			HomeScrollCountMin:     2,
			HomeScrollCountMax:     4,
			PostReadingDurationMin: 2.0,
			PostReadingDurationMax: 5.0,
			ReplyCheckCountMin:     1,
			ReplyCheckCountMax:     2,
			PreActionWaitMin:       1.0,
			PreActionWaitMax:       3.0,
			PostActionWaitMin:      1.0,
			PostActionWaitMax:      2.0,
		},
		Search: SearchConfig{
			Keywords:           []string{"リポスト", "フォロー", "キャンペーン", "プレゼント"},
			IncludeDate:        true,
			MaxPostsPerSession: 10,
			MaxScrollAttempts:  10,
		},
		Notify: NotifyConfig{
			Enabled:   false,
			Workspace: "default",
		},
		Storage: StorageConfig{
			DatabasePath: "./data/automation.db",
			CookiesPath:  "./data/cookies.json",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputFile: "./logs/automation.log",
		},
	}
}

// LoadConfig loads configuration from a YAML file and applies environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Try to load from file if it exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults
		} else {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Apply environment variable overrides
	config.applyEnvOverrides()

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	// Credentials (most commonly overridden via env)
	if username := os.Getenv("X_USERNAME"); username != "" {
		c.Account.Username = username
	}
	if password := os.Getenv("X_PASSWORD"); password != "" {
		c.Account.Password = password
	}

	// Browser settings
	if headless := os.Getenv("HEADLESS"); headless != "" {
		c.Browser.Headless = headless == "true" || headless == "1"
	}
	if browserPath := os.Getenv("BROWSER_PATH"); browserPath != "" {
		c.Browser.BrowserPath = browserPath
	}

	// Session limits
	if maxPosts := os.Getenv("MAX_POSTS_PER_SESSION"); maxPosts != "" {
		if val, err := strconv.Atoi(maxPosts); err == nil {
			c.Search.MaxPostsPerSession = val
		}
	}
	if maxScroll := os.Getenv("MAX_SCROLL_ATTEMPTS"); maxScroll != "" {
		if val, err := strconv.Atoi(maxScroll); err == nil {
			c.Search.MaxScrollAttempts = val
		}
	}

	// Slack notification
	if apiURL := os.Getenv("SLACK_API_URL"); apiURL != "" {
		c.Notify.APIURL = apiURL
		c.Notify.Enabled = true
	}
	if apiKey := os.Getenv("SLACK_API_KEY"); apiKey != "" {
		c.Notify.APIKey = apiKey
	}
	if workspace := os.Getenv("SLACK_WORKSPACE"); workspace != "" {
		c.Notify.Workspace = workspace
	}

	// Logging
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	// Storage
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate required fields
	if c.Account.Username == "" {
		return fmt.Errorf("X username is required (set X_USERNAME env var or in config)")
	}
	if c.Account.Password == "" {
		return fmt.Errorf("X password is required (set X_PASSWORD env var or in config)")
	}

	// Validate session limits
	if c.Search.MaxPostsPerSession < 1 || c.Search.MaxPostsPerSession > 100 {
		return fmt.Errorf("max_posts_per_session must be between 1 and 100")
	}

	// Validate probability knobs
	probs := map[string]float64{
		"home_browsing_chance":    c.Filler.HomeBrowsingChance,
		"post_reading_chance":     c.Filler.PostReadingChance,
		"reply_checking_chance":   c.Filler.ReplyCheckingChance,
		"pre_action_wait_chance":  c.Filler.PreActionWaitChance,
		"post_action_wait_chance": c.Filler.PostActionWaitChance,
		"double_check_chance":     c.Filler.DoubleCheckChance,
		"shuffle_chance":          c.Filler.ShuffleChance,
	}
	for name, p := range probs {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}

	if c.Delays.VariationFactor < 0 || c.Delays.VariationFactor > 1 {
		return fmt.Errorf("variation_factor must be between 0.0 and 1.0")
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the configured browser timeout as a time.Duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Browser.Timeout) * time.Second
}

// SaveConfig saves the current configuration to a YAML file
func (c *Config) SaveConfig(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
