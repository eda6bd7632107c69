package config

import (
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	got := Flatten(map[string]any{
		"log_level": "info",
		"store":     map[string]any{"driver": "sqlite", "dsn": "/tmp/bao.db"},
		"llm":       map[string]any{"max_tokens": float64(8192), "json_mode": true},
		"tables":    map[string]any{},
	})
	want := map[string]any{
		"log_level":      "info",
		"store.driver":   "sqlite",
		"store.dsn":      "/tmp/bao.db",
		"llm.max_tokens": float64(8192),
		"llm.json_mode":  true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten = %v, want %v", got, want)
	}
}

func TestUnflattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"page_size": float64(50),
		"retry":     map[string]any{"max_attempts": float64(5), "pace_ms": float64(500)},
		"serve":     map[string]any{"schedule": "@every 15m"},
	}
	if got := Unflatten(Flatten(nested)); !reflect.DeepEqual(got, nested) {
		t.Errorf("round trip = %v, want %v", got, nested)
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		key, value string
		want       any
	}{
		{"store.api_key", "service-role-9876", "***9876"},
		{"llm.api_key", "abc", "***abc"},
		{"telegram.token", "", ""},
		{"store.url", "https://x.supabase.co", "https://x.supabase.co"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := MaskSecrets(map[string]any{tt.key: tt.value})[tt.key]
			if got != tt.want {
				t.Errorf("MaskSecrets(%s=%q) = %v, want %v", tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func TestMaskSecretsLeavesNonStrings(t *testing.T) {
	got := MaskSecrets(map[string]any{"llm.api_key": nil, "page_size": float64(50)})
	if got["llm.api_key"] != nil || got["page_size"] != float64(50) {
		t.Errorf("unexpected %v", got)
	}
}
