// Package prompt assembles what is sent to the classifier: the system prompt
// loaded once at startup and the per-message user content.
package prompt

import (
	"fmt"
	"os"
	"strings"
)

// Template is the classifier system prompt.
type Template struct {
	Path string
	Text string
}

// Load reads the system prompt from path. A missing or empty file is an error
// because no message can be classified without it.
func Load(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read prompt template: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Template{}, fmt.Errorf("prompt template %s is empty", path)
	}
	return Template{Path: path, Text: text}, nil
}

// System returns the system prompt, followed by the output schema when one is
// given.
func (t Template) System(schema string) string {
	if schema == "" {
		return t.Text
	}
	return t.Text + "\n\nRespond with JSON that matches this schema:\n" + schema
}
