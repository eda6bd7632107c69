package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/prompt"
	"github.com/falcorrus/bao-tg-importer/pkg/llm"
)

type scriptedProvider struct {
	replies []reply
	calls   int
	last    []llm.Message
}

type reply struct {
	content string
	err     error
}

func (p *scriptedProvider) Complete(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	p.last = messages
	r := p.replies[p.calls]
	p.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Content: r.content}, nil
}

func newTestClassifier(p llm.Provider) (*Classifier, *[]time.Duration) {
	var slept []time.Duration
	policy := DefaultRetryPolicy()
	policy.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	builder := prompt.NewBuilderWithCounter(prompt.RuneCounter{}, 0)
	return New(p, "find events", builder, Options{Policy: policy}), &slept
}

var posted = time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)

func TestClassifySingleObject(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{content: `{"is_event": true, "title": "Concert", "whenDay": "2024-01-15"}`}}}
	c, _ := newTestClassifier(p)

	items, err := c.Classify(context.Background(), "Concert 15 января", posted)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0]["title"] != "Concert" {
		t.Fatalf("unexpected items %v", items)
	}

	if p.last[0].Role != "system" || p.last[0].Content != "find events" {
		t.Errorf("unexpected system message %+v", p.last[0])
	}
	if !strings.HasPrefix(p.last[1].Content, "CURRENT CONTEXT DATE (Post Date): 2024-01-10 (Wednesday)") {
		t.Errorf("user content must carry the post date, got %q", p.last[1].Content)
	}
}

func TestClassifyRateLimitedThenSuccess(t *testing.T) {
	limited := reply{err: &llm.APIError{StatusCode: 429}}
	p := &scriptedProvider{replies: []reply{limited, limited, limited, {content: `[{"title":"A"},{"title":"B"}]`}}}
	c, slept := newTestClassifier(p)

	items, err := c.Classify(context.Background(), "text", posted)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	if total != 14*time.Second {
		t.Errorf("expected 2s*(1+2+4) of suspension, got %v", total)
	}
}

func TestClassifyPermanentError(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: &llm.APIError{StatusCode: 403}}}}
	c, slept := newTestClassifier(p)

	items, err := c.Classify(context.Background(), "text", posted)
	if err == nil || items != nil {
		t.Fatalf("expected no result, got %v %v", items, err)
	}
	if p.calls != 1 || len(*slept) != 0 {
		t.Errorf("expected fail-fast, got %d calls and %d waits", p.calls, len(*slept))
	}
}

func TestClassifyUnparsable(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{content: "I think this is a concert"}}}
	c, _ := newTestClassifier(p)

	items, err := c.Classify(context.Background(), "text", posted)
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	if items != nil {
		t.Errorf("expected no items, got %v", items)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  int
		err   bool
	}{
		{"object", `{"title":"x"}`, 1, false},
		{"array", `[{"title":"x"},{"title":"y"}]`, 2, false},
		{"empty array", `[]`, 0, false},
		{"wrapped", `{"events":[{"title":"x"}]}`, 1, false},
		{"fenced", "```json\n[{\"title\":\"x\"}]\n```", 1, false},
		{"mixed array", `[{"title":"x"}, 3, "y"]`, 1, false},
		{"scalar", `42`, 0, true},
		{"garbage", `{"title":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseResponse(tt.reply)
			if tt.err {
				if !errors.Is(err, ErrNoResult) {
					t.Fatalf("expected ErrNoResult, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != tt.want {
				t.Errorf("expected %d items, got %d", tt.want, len(items))
			}
		})
	}
}
