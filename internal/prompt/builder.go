package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures and cuts text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// Builder renders the user content of a classification request.
type Builder struct {
	counter   Counter
	maxTokens int
}

// NewBuilder uses the tokenizer of model to keep message content within
// maxTokens. When no tokenizer can be loaded it falls back to an estimate of
// four characters per token. maxTokens <= 0 disables truncation.
func NewBuilder(model string, maxTokens int) *Builder {
	if maxTokens <= 0 {
		return NewBuilderWithCounter(RuneCounter{}, 0)
	}
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		slog.Warn("tokenizer unavailable, estimating token counts", "model", model, "error", err)
		counter = RuneCounter{}
	}
	return NewBuilderWithCounter(counter, maxTokens)
}

func NewBuilderWithCounter(c Counter, maxTokens int) *Builder {
	return &Builder{counter: c, maxTokens: maxTokens}
}

// UserContent prefixes the message with the date it was posted so relative
// dates in the text can be resolved.
func (b *Builder) UserContent(text string, posted time.Time) string {
	if b.maxTokens > 0 && b.counter.Count(text) > b.maxTokens {
		text = b.counter.Truncate(text, b.maxTokens)
	}
	posted = posted.UTC()
	return fmt.Sprintf("CURRENT CONTEXT DATE (Post Date): %s (%s)\n\nMESSAGE CONTENT:\n%s",
		posted.Format(time.DateOnly), posted.Weekday(), text)
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter selects the encoding for model, falling back to
// cl100k_base for models tiktoken does not know.
func NewTiktokenCounter(model string) (Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return tiktokenCounter{enc: enc}, nil
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c tiktokenCounter) Truncate(text string, maxTokens int) string {
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	// a cut can land inside a multi-byte rune
	return strings.ToValidUTF8(c.enc.Decode(tokens[:maxTokens]), "")
}

// RuneCounter estimates one token per four characters.
type RuneCounter struct{}

func (RuneCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

func (RuneCounter) Truncate(text string, maxTokens int) string {
	limit := maxTokens * 4
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
