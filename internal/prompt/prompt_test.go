package prompt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	if err := os.WriteFile(path, []byte("  Classify events.\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Text != "Classify events." {
		t.Errorf("expected trimmed text, got %q", tmpl.Text)
	}
	if got := tmpl.System(""); got != "Classify events." {
		t.Errorf("unexpected system prompt %q", got)
	}
	if got := tmpl.System(`{"type":"array"}`); !strings.HasSuffix(got, `{"type":"array"}`) {
		t.Errorf("expected schema appended, got %q", got)
	}
}

func TestLoadMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("expected error for missing template")
	}
	empty := filepath.Join(dir, "empty.md")
	os.WriteFile(empty, []byte("\n\n"), 0644)
	if _, err := Load(empty); err == nil {
		t.Error("expected error for empty template")
	}
}

func TestUserContent(t *testing.T) {
	b := NewBuilderWithCounter(RuneCounter{}, 0)
	posted := time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC)

	got := b.UserContent("Концерт завтра", posted)
	want := "CURRENT CONTEXT DATE (Post Date): 2024-01-10 (Wednesday)\n\nMESSAGE CONTENT:\nКонцерт завтра"
	if got != want {
		t.Errorf("unexpected content:\n%s\nwant:\n%s", got, want)
	}
}

func TestUserContentTruncates(t *testing.T) {
	b := NewBuilderWithCounter(RuneCounter{}, 2)
	got := b.UserContent("абвгдежзийклмн", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	if !strings.HasSuffix(got, "\nабвгдежз") {
		t.Errorf("expected content cut to 8 runes, got %q", got)
	}
}

func TestTiktokenCounter(t *testing.T) {
	c, err := NewTiktokenCounter("gpt-4")
	if err != nil {
		t.Skipf("tokenizer not available: %v", err)
	}
	text := strings.Repeat("event on the fifteenth of january ", 20)
	if c.Count(text) == 0 {
		t.Fatal("expected non-zero token count")
	}
	cut := c.Truncate(text, 5)
	if c.Count(cut) > 5 || len(cut) >= len(text) {
		t.Errorf("expected truncation to 5 tokens, got %q", cut)
	}
}

func TestOutputSchema(t *testing.T) {
	s, err := OutputSchema()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if doc["type"] != "array" {
		t.Errorf("expected array schema, got %v", doc["type"])
	}
	if !strings.Contains(s, "whenDay") || !strings.Contains(s, "link_contact") {
		t.Error("expected event fields in schema")
	}
}
