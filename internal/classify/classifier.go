// Package classify turns message text into raw event objects by asking an
// LLM provider, retrying when the provider is rate limited.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/metrics"
	"github.com/falcorrus/bao-tg-importer/internal/prompt"
	"github.com/falcorrus/bao-tg-importer/pkg/llm"
)

// ErrNoResult marks a reply that held no usable JSON.
var ErrNoResult = errors.New("no parsable result")

// Classifier wraps an llm.Provider with the system prompt, retry policy and
// response normalization.
type Classifier struct {
	provider llm.Provider
	system   string
	builder  *prompt.Builder
	policy   *RetryPolicy
	pace     time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Options tune a Classifier. Zero values select the defaults.
type Options struct {
	Policy  *RetryPolicy
	Pace    time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New builds a Classifier. system is the full system prompt.
func New(provider llm.Provider, system string, builder *prompt.Builder, opts Options) *Classifier {
	c := &Classifier{
		provider: provider,
		system:   system,
		builder:  builder,
		policy:   opts.Policy,
		pace:     opts.Pace,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if c.policy == nil {
		c.policy = DefaultRetryPolicy()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Classify returns the raw event objects found in text. posted is the
// message date used to resolve relative dates. A nil slice and nil error
// means the message holds no events; any error means the message is skipped.
func (c *Classifier) Classify(ctx context.Context, text string, posted time.Time) ([]map[string]any, error) {
	messages := []llm.Message{
		llm.System(c.system),
		llm.User(c.builder.UserContent(text, posted)),
	}

	var resp *llm.Response
	err := c.policy.Execute(ctx, func() error {
		var err error
		resp, err = c.provider.Complete(ctx, messages)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("classifier rate limited, backing off", "attempt", attempt, "delay", delay)
		c.metrics.ClassifierRetry()
	})
	if err != nil {
		c.metrics.Classified(metrics.OutcomeError)
		return nil, fmt.Errorf("classify: %w", err)
	}

	if c.pace > 0 {
		if err := sleepContext(ctx, c.pace); err != nil {
			return nil, err
		}
	}

	items, err := ParseResponse(resp.Content)
	if err != nil {
		c.metrics.Classified(metrics.OutcomeUnparsable)
		c.logger.Warn("unparsable classifier reply", "error", err, "reply", truncate(resp.Content, 200))
		return nil, err
	}
	c.metrics.Classified(metrics.OutcomeOK)
	return items, nil
}

// ParseResponse normalizes a reply to a list of objects. It accepts a single
// object, an array of objects, or an object wrapping the array under
// "events", optionally inside a markdown code fence. Non-object array
// elements are dropped.
func ParseResponse(reply string) ([]map[string]any, error) {
	reply = stripFence(reply)

	var v any
	if err := json.Unmarshal([]byte(reply), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResult, err)
	}

	switch x := v.(type) {
	case []any:
		return objects(x), nil
	case map[string]any:
		if inner, ok := x["events"].([]any); ok && len(x) == 1 {
			return objects(inner), nil
		}
		return []map[string]any{x}, nil
	default:
		return nil, fmt.Errorf("%w: top-level %T", ErrNoResult, v)
	}
}

func objects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
