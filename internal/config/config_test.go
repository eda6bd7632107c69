package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

// clearEnv blanks every variable Load reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{"MY_SUPABASE_URL", "MY_SUPABASE_SERVICE_ROLE_KEY", "GEMINI_API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "TELEGRAM_BOT_TOKEN"} {
		t.Setenv(k, "")
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written: %v", err)
	}
	if cfg.PageSize != 50 || cfg.ImageBucket != "events" || cfg.LogSuppressedTag != "1" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Tables.Sources != "channel_sync_state" || cfg.Tables.Posts != "posts" || cfg.Tables.Events != "events" {
		t.Errorf("unexpected tables %+v", cfg.Tables)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay().Milliseconds() != 2000 || cfg.Retry.Pace().Milliseconds() != 500 {
		t.Errorf("unexpected retry %+v", cfg.Retry)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Temperature != 0.1 {
		t.Errorf("unexpected llm %+v", cfg.LLM)
	}
	if cfg.Serve.Schedule != "@every 15m" || cfg.Serve.Listen != "127.0.0.1:8088" {
		t.Errorf("unexpected serve %+v", cfg.Serve)
	}
	author, err := cfg.Author()
	if err != nil || string(author) != DefaultAuthor {
		t.Errorf("unexpected author %q, %v", author, err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("MY_SUPABASE_SERVICE_ROLE_KEY", "service-role")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-flash")
	t.Setenv("OPENAI_API_KEY", "ignored-for-gemini")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load(tempConfigPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.URL != "https://proj.supabase.co" || cfg.Store.APIKey != "service-role" {
		t.Errorf("store env not applied: %+v", cfg.Store)
	}
	if cfg.LLM.APIKey != "gem-key" || cfg.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("gemini env not applied: %+v", cfg.LLM)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("telegram env not applied: %q", cfg.Telegram.Token)
	}
}

func TestLoad_OpenAIEnv(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	cfg := defaults()
	cfg.LLM.Provider = "openai"
	writeTestConfig(t, path, cfg)
	t.Setenv("OPENAI_API_KEY", "sk-local")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("GEMINI_API_KEY", "ignored")

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLM.APIKey != "sk-local" || loaded.LLM.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("openai env not applied: %+v", loaded.LLM)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaults()
		cfg.Store.URL = "https://proj.supabase.co"
		cfg.Store.APIKey = "key"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad author", func(c *Config) { c.AutomatedAuthor = "robot" }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"missing store key", func(c *Config) { c.Store.APIKey = "" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "claude" }},
		{"unknown source", func(c *Config) { c.Source.Kind = "mtproto" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	local := valid()
	local.Store = StoreConfig{Driver: "sqlite", DSN: "bao.db"}
	if err := local.Validate(); err != nil {
		t.Errorf("sqlite needs no credentials, got %v", err)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	original := defaults()
	original.DataDir = "/tmp/test-data"
	original.LogLevel = "debug"
	original.PageSize = 20
	original.Store.Driver = "sqlite"
	original.LLM.Provider = "openai"
	original.LLM.APIKey = "sk-test-round-trip"
	original.LLM.Model = "gpt-4o-mini"
	original.LLM.Temperature = 0.5
	original.Telegram.Token = "bot-token-456"
	original.Telegram.NotifyChatID = -1009876

	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("LogLevel mismatch: %v != %v", loaded.LogLevel, original.LogLevel)
	}
	if loaded.PageSize != original.PageSize {
		t.Errorf("PageSize mismatch: %v != %v", loaded.PageSize, original.PageSize)
	}
	if loaded.Store.Driver != original.Store.Driver {
		t.Errorf("Store.Driver mismatch: %v != %v", loaded.Store.Driver, original.Store.Driver)
	}
	if loaded.LLM.APIKey != original.LLM.APIKey {
		t.Errorf("LLM.APIKey mismatch: %v != %v", loaded.LLM.APIKey, original.LLM.APIKey)
	}
	if loaded.LLM.Temperature != original.LLM.Temperature {
		t.Errorf("LLM.Temperature mismatch: %v != %v", loaded.LLM.Temperature, original.LLM.Temperature)
	}
	if loaded.Telegram.NotifyChatID != original.Telegram.NotifyChatID {
		t.Errorf("Telegram.NotifyChatID mismatch: %v != %v", loaded.Telegram.NotifyChatID, original.Telegram.NotifyChatID)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestToMap(t *testing.T) {
	cfg := &Config{
		DataDir:  "/tmp/test",
		LogLevel: "debug",
	}
	cfg.LLM.Provider = "gemini"
	cfg.LLM.Model = "gemini-2.0-flash"
	cfg.LLM.MaxTokens = 8192

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}

	if m["data_dir"] != "/tmp/test" {
		t.Errorf("expected data_dir=/tmp/test, got %v", m["data_dir"])
	}

	llm, ok := m["llm"].(map[string]any)
	if !ok {
		t.Fatalf("expected llm to be map, got %T", m["llm"])
	}
	if llm["model"] != "gemini-2.0-flash" {
		t.Errorf("expected llm.model=gemini-2.0-flash, got %v", llm["model"])
	}
	// JSON numbers are float64
	if llm["max_tokens"] != float64(8192) {
		t.Errorf("expected llm.max_tokens=8192, got %v", llm["max_tokens"])
	}
}

func TestListValues_WithMask(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.Store.APIKey = "service-role-9876"
	cfg.LLM.APIKey = "sk-secret-key-1234"
	cfg.Telegram.Token = "bot-token-abcd"

	flat, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}
	if flat["store.api_key"] != "***9876" {
		t.Errorf("expected masked store.api_key=***9876, got %v", flat["store.api_key"])
	}
	if flat["llm.api_key"] != "***1234" {
		t.Errorf("expected masked llm.api_key=***1234, got %v", flat["llm.api_key"])
	}
	if flat["telegram.token"] != "***abcd" {
		t.Errorf("expected masked telegram.token=***abcd, got %v", flat["telegram.token"])
	}
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}

	plain, err := ListValues(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if plain["llm.api_key"] != "sk-secret-key-1234" {
		t.Errorf("expected unmasked llm.api_key, got %v", plain["llm.api_key"])
	}
}

func TestGetValue_ExistingKey(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg := defaults()
	cfg.LogLevel = "debug"
	cfg.PageSize = 25
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	v, err = GetValue(path, "tables.events")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "events" {
		t.Errorf("expected tables.events=events, got %v", v)
	}

	v, err = GetValue(path, "page_size")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != float64(25) {
		t.Errorf("expected page_size=25, got %v (%T)", v, v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, &Config{LogLevel: "info"})

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	expected := "unknown config key: nonexistent.key"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestGetValue_NonexistentFile(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	v, err := GetValue(path, "retry.max_attempts")
	if err != nil {
		t.Fatalf("GetValue on new config failed: %v", err)
	}
	if v != float64(5) {
		t.Errorf("expected default retry.max_attempts=5, got %v", v)
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	cfg := defaults()
	writeTestConfig(t, path, cfg)

	tests := []struct {
		key   string
		value string
		want  any
	}{
		{"log_level", "debug", "debug"},
		{"page_size", "100", float64(100)},
		{"llm.json_mode", "false", false},
		{"llm.temperature", "0.3", 0.3},
		{"store.driver", "sqlite", "sqlite"},
		{"custom.setting", "value", "value"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := SetValue(path, tt.key, tt.value); err != nil {
				t.Fatalf("SetValue failed: %v", err)
			}
			v, err := GetValue(path, tt.key)
			if err != nil {
				t.Fatalf("GetValue failed: %v", err)
			}
			if v != tt.want {
				t.Errorf("expected %s=%v, got %v (%T)", tt.key, tt.want, v, v)
			}
		})
	}

	v, err := GetValue(path, "tables.sources")
	if err != nil {
		t.Fatal(err)
	}
	if v != "channel_sync_state" {
		t.Errorf("other values should be preserved, got %v", v)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "config.json")

	if err := Save(path, &Config{LogLevel: "warn"}); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}
