package control

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	DBPath   string         `yaml:"db_path"`
	Browser  BrowserConfig  `yaml:"browser"`
	Site     SiteConfig     `yaml:"site"`
	Login    LoginConfig    `yaml:"login"`
	Matching MatchingConfig `yaml:"matching"`
	AI       AIConfig       `yaml:"ai"`
	Profile  ProfileConfig  `yaml:"profile"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Mode             string   `yaml:"mode"` // headful | headless
	MemoryWarnLimit  int64    `yaml:"memory_warn_limit"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	XvfbDisplay      string   `yaml:"xvfb_display"`
}

// SiteConfig targets one job board.
type SiteConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PageTimeout  time.Duration `yaml:"page_timeout"`
	MaxFormSteps int           `yaml:"max_form_steps"`
}

// LoginConfig names the environment variables holding the target-site
// credentials. The credentials themselves never appear in the file. When
// both variables are set, sessions log in before searching and AutoRelogin
// permits recovering from a mid-run session timeout.
type LoginConfig struct {
	EmailEnv    string `yaml:"email_env"`
	PasswordEnv string `yaml:"password_env"`
	AutoRelogin bool   `yaml:"auto_relogin"`
}

// MatchingConfig tunes the similarity thresholds. Zero values take the
// built-in defaults downstream.
type MatchingConfig struct {
	FieldOverlap  float64 `yaml:"field_overlap"`  // field label vs answer key
	QuestionFloor float64 `yaml:"question_floor"` // static question match
	BankThreshold float64 `yaml:"bank_threshold"` // learned question similarity
}

// AIConfig enables the generative answer fallback. The API key comes from
// the environment variable named here, never from the file itself.
type AIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// ProfileConfig is the candidate's data for form filling.
type ProfileConfig struct {
	Personals       map[string]string `yaml:"personals"`
	StaticQuestions map[string]string `yaml:"static_questions"`
	ResumePath      string            `yaml:"resume_path"`
}

// LoadConfig reads a YAML configuration file and applies defaults. An empty
// path yields the pure defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("control: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("control: parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8077"
	}
	if c.DBPath == "" {
		c.DBPath = "applyd.db"
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headful"
	}
	if c.Browser.MemoryWarnLimit <= 0 {
		c.Browser.MemoryWarnLimit = 1 << 30
	}
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = "https://www.linkedin.com"
	}
	if c.Site.PageTimeout <= 0 {
		c.Site.PageTimeout = 10 * time.Second
	}
	if c.Site.MaxFormSteps <= 0 {
		c.Site.MaxFormSteps = 10
	}
	if c.Login.EmailEnv == "" {
		c.Login.EmailEnv = "APPLYD_EMAIL"
	}
	if c.Login.PasswordEnv == "" {
		c.Login.PasswordEnv = "APPLYD_PASSWORD"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o-mini"
	}
	if c.AI.APIKeyEnv == "" {
		c.AI.APIKeyEnv = "OPENAI_API_KEY"
	}
}
