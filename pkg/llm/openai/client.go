// Package openai implements llm.Provider against OpenAI-compatible
// /chat/completions endpoints, local servers such as Ollama's /v1 included.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/falcorrus/bao-tg-importer/pkg/llm"
)

// maxReplyBytes bounds how much of a reply is read.
const maxReplyBytes = 8 << 20

type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

func New(config *llm.Config) *Client {
	return &Client{config: config, httpClient: &http.Client{Timeout: 2 * time.Minute}}
}

type completionRequest struct {
	Model          string        `json:"model"`
	Messages       []llm.Message `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    *float32      `json:"temperature,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type completionReply struct {
	Choices []struct {
		Message      llm.Message `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		Prompt     int `json:"prompt_tokens"`
		Completion int `json:"completion_tokens"`
		Total      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) request(messages []llm.Message) completionRequest {
	r := completionRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: c.config.MaxTokens,
	}
	if t := c.config.Temperature; t != 0 {
		r.Temperature = &t
	}
	if c.config.JSONMode {
		r.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}
	return r
}

// Complete returns the first choice. The key is sent only when configured,
// since local servers usually run without one.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	payload, err := json.Marshal(c.request(messages))
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.config.APIKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read completion: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var reply completionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(reply.Choices) == 0 {
		return nil, errors.New("completion has no choices")
	}
	return &llm.Response{
		Content: reply.Choices[0].Message.Content,
		Usage: llm.Usage{
			InputTokens:  reply.Usage.Prompt,
			OutputTokens: reply.Usage.Completion,
			TotalTokens:  reply.Usage.Total,
		},
	}, nil
}
