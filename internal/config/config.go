package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Interests      []string       `yaml:"interests"`
	PrimarySources PrimarySources `yaml:"primary_sources"`
	Thresholds     Thresholds     `yaml:"recommendation_thresholds"`
	Discovery      Discovery      `yaml:"discovery"`
	Scoring        Scoring        `yaml:"scoring"`
	Notifications  Notifications  `yaml:"notifications"`
	Report         Report         `yaml:"report"`
	Summarization  Summarization  `yaml:"summarization"`
	Output         Output         `yaml:"output"`
	Server         Server         `yaml:"server"`
}

type PrimarySources struct {
	Blogs  []Blog          `yaml:"blogs"`
	Social []SocialAccount `yaml:"social"`
	// Twitter is the legacy key for Social; entries are merged at parse time.
	Twitter []SocialAccount `yaml:"twitter"`
}

type Blog struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type SocialAccount struct {
	Name   string `yaml:"name"`
	Handle string `yaml:"handle"`
}

type Thresholds struct {
	MinRelevanceScore float64 `yaml:"min_relevance_score"`
	MinCitationCount  int     `yaml:"min_citation_count"`
	MaxSourceAgeDays  int     `yaml:"max_source_age_days"`
}

type Discovery struct {
	DenyDomains             []string `yaml:"deny_domains"`
	MaxEntriesPerFeed       int      `yaml:"max_entries_per_feed"`
	MaxPostsPerAccount      int      `yaml:"max_posts_per_account"`
	Concurrency             int      `yaml:"concurrency"`
	FullContent             bool     `yaml:"full_content"`
	FetchTimeoutSeconds     int      `yaml:"fetch_timeout_seconds"`
	SocialBearerTokenEnv    string   `yaml:"social_bearer_token_env"`
	SocialRequestsPerMinute int      `yaml:"social_requests_per_minute"`
}

type Scoring struct {
	UseContent bool `yaml:"use_content"`
}

type Notifications struct {
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
	Console    bool   `yaml:"console"`
}

type Report struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
}

type Summarization struct {
	Provider           string `yaml:"provider"`
	Model              string `yaml:"model"`
	OllamaURL          string `yaml:"ollama_url"`
	OpenAIModel        string `yaml:"openai_model"`
	AnthropicModel     string `yaml:"anthropic_model"`
	APIKeyEnv          string `yaml:"api_key_env"`
	AnthropicAPIKeyEnv string `yaml:"anthropic_api_key_env"`
	MaxTokens          int    `yaml:"max_tokens"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigError reports a configuration problem detected at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// NotificationFormats lists the output formats the file notifier understands.
var NotificationFormats = []string{"markdown", "json", "text", "html", "docx"}

// ConfigDir returns the XDG config directory for aidiscovery.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "aidiscovery")
}

// DataDir returns the XDG data directory for aidiscovery.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "aidiscovery")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/aidiscovery/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'aidiscovery init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Thresholds: Thresholds{
			MinRelevanceScore: 0.7,
			MinCitationCount:  2,
			MaxSourceAgeDays:  90,
		},
		Discovery: Discovery{
			DenyDomains:             []string{"facebook.com", "instagram.com"},
			MaxEntriesPerFeed:       10,
			MaxPostsPerAccount:      15,
			Concurrency:             4,
			FetchTimeoutSeconds:     30,
			SocialBearerTokenEnv:    "TWITTER_BEARER_TOKEN",
			SocialRequestsPerMinute: 30,
		},
		Notifications: Notifications{
			Format:     "markdown",
			OutputFile: "recommendations.md",
			Console:    true,
		},
		Report: Report{OutputFile: "report.md"},
		Summarization: Summarization{
			Provider:           "ollama",
			Model:              "qwen2.5:7b",
			OllamaURL:          "http://localhost:11434",
			OpenAIModel:        "gpt-4o-mini",
			AnthropicModel:     "claude-3-5-haiku-20241022",
			APIKeyEnv:          "OPENAI_API_KEY",
			AnthropicAPIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:          1500,
		},
		Server: Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.PrimarySources.Social = append(cfg.PrimarySources.Social, cfg.PrimarySources.Twitter...)
	cfg.PrimarySources.Twitter = nil
	for i, acc := range cfg.PrimarySources.Social {
		cfg.PrimarySources.Social[i].Handle = strings.TrimPrefix(strings.TrimSpace(acc.Handle), "@")
	}

	return cfg, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if len(c.PrimarySources.Blogs) == 0 && len(c.PrimarySources.Social) == 0 {
		return &ConfigError{Field: "primary_sources", Reason: "at least one blog or social account is required"}
	}
	for _, b := range c.PrimarySources.Blogs {
		if b.Name == "" || b.URL == "" {
			return &ConfigError{Field: "primary_sources.blogs", Reason: "every blog needs a name and url"}
		}
	}
	for _, s := range c.PrimarySources.Social {
		if s.Name == "" || s.Handle == "" {
			return &ConfigError{Field: "primary_sources.social", Reason: "every account needs a name and handle"}
		}
	}

	t := c.Thresholds
	if t.MinRelevanceScore < 0 || t.MinRelevanceScore > 1 {
		return &ConfigError{Field: "recommendation_thresholds.min_relevance_score", Reason: "must be within [0, 1]"}
	}
	if t.MinCitationCount < 0 {
		return &ConfigError{Field: "recommendation_thresholds.min_citation_count", Reason: "must not be negative"}
	}
	if t.MaxSourceAgeDays <= 0 {
		return &ConfigError{Field: "recommendation_thresholds.max_source_age_days", Reason: "must be positive"}
	}

	if c.Discovery.Concurrency <= 0 {
		return &ConfigError{Field: "discovery.concurrency", Reason: "must be positive"}
	}

	format := strings.ToLower(c.Notifications.Format)
	known := false
	for _, f := range NotificationFormats {
		if f == format {
			known = true
			break
		}
	}
	if !known {
		return &ConfigError{
			Field:  "notifications.format",
			Reason: fmt.Sprintf("unknown format %q (want one of %s)", c.Notifications.Format, strings.Join(NotificationFormats, ", ")),
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// OutputPath resolves a relative output file against the data directory.
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.GetDataDir(), name)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
