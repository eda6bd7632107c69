package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// DefaultAuthor is the identity stamped on imported events.
const DefaultAuthor = "666408b4-1566-447b-a36c-0e36c9ebc96d"

type Config struct {
	DataDir          string `json:"data_dir"`
	LogLevel         string `json:"log_level"`
	PromptPath       string `json:"prompt_path"`
	PageSize         int    `json:"page_size"`
	ImageBucket      string `json:"image_bucket"`
	AutomatedAuthor  string `json:"automated_author"`
	LogSuppressedTag string `json:"log_suppressed_tag"`
	RunLogPath       string `json:"run_log_path"`

	Store    StoreConfig    `json:"store"`
	Tables   TablesConfig   `json:"tables"`
	LLM      LLMConfig      `json:"llm"`
	Retry    RetryConfig    `json:"retry"`
	Source   SourceConfig   `json:"source"`
	Telegram TelegramConfig `json:"telegram"`
	Serve    ServeConfig    `json:"serve"`
}

type StoreConfig struct {
	// Driver is "postgrest" or "sqlite".
	Driver      string `json:"driver"`
	URL         string `json:"url"`
	APIKey      string `json:"api_key"`
	DSN         string `json:"dsn"`
	BlobBaseURL string `json:"blob_base_url"`
}

type TablesConfig struct {
	Sources string `json:"sources"`
	Posts   string `json:"posts"`
	Events  string `json:"events"`
}

type LLMConfig struct {
	// Provider is "gemini" or "openai".
	Provider       string  `json:"provider"`
	BaseURL        string  `json:"base_url"`
	APIKey         string  `json:"api_key"`
	Model          string  `json:"model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float32 `json:"temperature"`
	MaxInputTokens int     `json:"max_input_tokens"`
	JSONMode       bool    `json:"json_mode"`
	AppendSchema   bool    `json:"append_schema"`
}

type RetryConfig struct {
	MaxAttempts int `json:"max_attempts"`
	BaseDelayMS int `json:"base_delay_ms"`
	PaceMS      int `json:"pace_ms"`
}

func (r RetryConfig) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMS) * time.Millisecond }
func (r RetryConfig) Pace() time.Duration      { return time.Duration(r.PaceMS) * time.Millisecond }

type SourceConfig struct {
	// Kind is "bot" or "export".
	Kind      string `json:"kind"`
	ExportDir string `json:"export_dir"`
}

type TelegramConfig struct {
	Token        string `json:"token"`
	NotifyChatID int64  `json:"notify_chat_id"`
	APIEndpoint  string `json:"api_endpoint,omitempty"`
}

type ServeConfig struct {
	Schedule string `json:"schedule"`
	Listen   string `json:"listen"`
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".bao-importer", "config.json")
}

func defaults() *Config {
	dataDir := filepath.Join(os.Getenv("HOME"), ".bao-importer")
	cfg := &Config{
		DataDir:          dataDir,
		LogLevel:         "info",
		PromptPath:       filepath.Join(dataDir, "prompt.txt"),
		PageSize:         50,
		ImageBucket:      "events",
		AutomatedAuthor:  DefaultAuthor,
		LogSuppressedTag: "1",
		RunLogPath:       filepath.Join(dataDir, "sync.log"),
	}
	cfg.Store = StoreConfig{Driver: "postgrest", DSN: filepath.Join(dataDir, "bao.db")}
	cfg.Tables = TablesConfig{Sources: "channel_sync_state", Posts: "posts", Events: "events"}
	cfg.LLM = LLMConfig{
		Provider:     "gemini",
		Model:        "gemini-2.0-flash",
		MaxTokens:    8192,
		Temperature:  0.1,
		JSONMode:     true,
		AppendSchema: true,
	}
	cfg.Retry = RetryConfig{MaxAttempts: 5, BaseDelayMS: 2000, PaceMS: 500}
	cfg.Source = SourceConfig{Kind: "bot", ExportDir: filepath.Join(dataDir, "exports")}
	cfg.Serve = ServeConfig{Schedule: "@every 15m", Listen: "127.0.0.1:8088"}
	return cfg
}

// Load reads path over the defaults, writing the defaults first when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv applies environment overrides (highest precedence).
func applyEnv(cfg *Config) {
	set := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	set(&cfg.Store.URL, "MY_SUPABASE_URL")
	set(&cfg.Store.APIKey, "MY_SUPABASE_SERVICE_ROLE_KEY")
	set(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")

	switch cfg.LLM.Provider {
	case "openai":
		set(&cfg.LLM.APIKey, "OPENAI_API_KEY")
		set(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	default:
		set(&cfg.LLM.APIKey, "GEMINI_API_KEY")
		set(&cfg.LLM.Model, "GEMINI_MODEL")
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if _, err := c.Author(); err != nil {
		return fmt.Errorf("automated_author: %w", err)
	}
	switch c.Store.Driver {
	case "postgrest":
		if c.Store.URL == "" || c.Store.APIKey == "" {
			return fmt.Errorf("store.url and store.api_key are required for the postgrest driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	switch c.Source.Kind {
	case "bot", "export":
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	return nil
}

// Author returns the automated-author identity in canonical form.
func (c *Config) Author() (types.AuthorID, error) {
	return types.ParseAuthorID(c.AutomatedAuthor)
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
