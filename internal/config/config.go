// Package config loads application settings from a YAML file and an env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lettercast/internal/filter"
	"lettercast/internal/model"
)

// ErrConfigNotFound is returned when the settings file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Default file locations.
const (
	DefaultConfigPath = "config/settings.yaml"
	DefaultEnvPath    = "config/.env"
)

// Config holds the application configuration.
type Config struct {
	Gmail      GmailConfig      `yaml:"gmail"`
	WebSources []WebSource      `yaml:"web_sources"`
	NotebookLM NotebookLMConfig `yaml:"notebooklm"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// GmailConfig configures the newsletter collector.
type GmailConfig struct {
	CredentialsPath string   `yaml:"credentials_path"`
	TokenPath       string   `yaml:"token_path"`
	AllowedSenders  []string `yaml:"allowed_senders"`
	MaxResults      int64    `yaml:"max_results"`
	ExcludeDomains  []string `yaml:"exclude_domains"`
	// IncludePatterns, when set, keep only links matching at least one pattern.
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	MarkAsRead      bool     `yaml:"mark_as_read"`
}

// WebSource is one site to collect the latest article from.
type WebSource struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Type     string `yaml:"type"`
	RSSURL   string `yaml:"rss_url"`
	Selector string `yaml:"selector"`
}

// NotebookLMConfig configures the browser automation.
type NotebookLMConfig struct {
	ChromeUserDataDir string `yaml:"chrome_user_data_dir"`
	ChromeProfile     string `yaml:"chrome_profile"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RetryCount        int    `yaml:"retry_count"`
	Headless          bool   `yaml:"headless"`
}

// Timeout returns the audio generation timeout.
func (n NotebookLMConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// TelegramConfig configures delivery. Both credentials may be ${ENV_VAR} references.
type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	ChannelID   string `yaml:"channel_id"`
	MaxRetries  int    `yaml:"max_retries"`
	SendSummary bool   `yaml:"send_summary"`
}

// StorageConfig configures local state.
type StorageConfig struct {
	DBPath       string `yaml:"db_path"`
	TempAudioDir string `yaml:"temp_audio_dir"`
	// MaxAgeHours is the window for the recent-items diagnostic. Nothing is pruned.
	MaxAgeHours int `yaml:"max_age_hours"`
}

// LogConfig configures logging. LOG_LEVEL in the environment overrides Level.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default returns a Config with every field set to its default value.
func Default() *Config {
	return &Config{
		Gmail: GmailConfig{
			CredentialsPath: "config/credentials.json",
			TokenPath:       "config/token.json",
			MaxResults:      10,
		},
		NotebookLM: NotebookLMConfig{
			ChromeUserDataDir: "~/Library/Application Support/Google/Chrome",
			ChromeProfile:     "Default",
			TimeoutSeconds:    300,
			RetryCount:        2,
		},
		Telegram: TelegramConfig{
			MaxRetries: 3,
		},
		Storage: StorageConfig{
			DBPath:       "data/lettercast.db",
			TempAudioDir: "data/tmp",
			MaxAgeHours:  24,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
		},
	}
}

// Load reads the env file (if present) and then the YAML settings file.
func Load(configPath, envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", envPath, err)
			}
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // operator-supplied path
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (copy config/settings.example.yaml to create it)", ErrConfigNotFound, configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML settings over the defaults and resolves env references.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range cfg.WebSources {
		if cfg.WebSources[i].Type == "" {
			cfg.WebSources[i].Type = string(model.SiteRSS)
		}
	}

	cfg.Telegram.BotToken = ResolveEnv(cfg.Telegram.BotToken)
	cfg.Telegram.ChannelID = ResolveEnv(cfg.Telegram.ChannelID)

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}

	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) check() error {
	for i, p := range c.Gmail.IncludePatterns {
		if err := filter.ValidateRegex(p); err != nil {
			return fmt.Errorf("gmail.include_patterns[%d]: %w", i, err)
		}
	}
	for i, p := range c.Gmail.ExcludePatterns {
		if err := filter.ValidateRegex(p); err != nil {
			return fmt.Errorf("gmail.exclude_patterns[%d]: %w", i, err)
		}
	}
	for i, ws := range c.WebSources {
		switch model.SiteType(ws.Type) {
		case model.SiteRSS, model.SiteHTML:
		default:
			return fmt.Errorf("web_sources[%d] %q: invalid type %q, use: rss, html", i, ws.Name, ws.Type)
		}
		if ws.URL == "" && ws.RSSURL == "" {
			return fmt.Errorf("web_sources[%d] %q: url is required", i, ws.Name)
		}
	}
	if c.NotebookLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("notebooklm.timeout_seconds must be positive")
	}
	if c.NotebookLM.RetryCount < 0 {
		return fmt.Errorf("notebooklm.retry_count must not be negative")
	}
	if c.Telegram.MaxRetries < 1 {
		return fmt.Errorf("telegram.max_retries must be at least 1")
	}
	return nil
}

// ResolveEnv replaces a whole-value ${NAME} reference with the environment value.
// Unset variables resolve to the empty string; other values pass through.
func ResolveEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// TargetSites converts the configured web sources to domain values.
func (c *Config) TargetSites() []model.TargetSite {
	sites := make([]model.TargetSite, 0, len(c.WebSources))
	for _, ws := range c.WebSources {
		sites = append(sites, model.TargetSite{
			Name:     ws.Name,
			URL:      ws.URL,
			Type:     model.SiteType(ws.Type),
			RSSURL:   ws.RSSURL,
			Selector: ws.Selector,
		})
	}
	return sites
}

// Validate returns human-readable warnings about settings that will limit a run.
func (c *Config) Validate() []string {
	var warnings []string

	if len(c.Gmail.AllowedSenders) == 0 {
		warnings = append(warnings, "gmail allowed_senders is empty")
	}
	if c.Telegram.BotToken == "" {
		warnings = append(warnings, "telegram bot_token is not set")
	}
	if c.Telegram.ChannelID == "" {
		warnings = append(warnings, "telegram channel_id is not set")
	}
	if _, err := os.Stat(c.Gmail.CredentialsPath); err != nil {
		warnings = append(warnings, fmt.Sprintf("gmail credentials file not found: %s", c.Gmail.CredentialsPath))
	}
	if dir := ExpandHome(c.NotebookLM.ChromeUserDataDir); dir != "" {
		if _, err := os.Stat(dir); err != nil {
			warnings = append(warnings, fmt.Sprintf("chrome user data directory not found: %s", dir))
		}
	}
	return warnings
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
