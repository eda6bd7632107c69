// Package postgrest implements types.Store against a Supabase project: the
// PostgREST API for tables and the Storage API for blobs.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the project at baseURL authenticated with a
// service-role key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) SelectRows(ctx context.Context, table string, filter types.Filter) ([]types.Row, error) {
	q := query(filter)
	if len(filter.Columns) > 0 {
		q.Set("select", strings.Join(filter.Columns, ","))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	body, err := c.do(ctx, http.MethodGet, "/rest/v1/"+table, q, nil, nil)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []types.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", table, err)
	}
	return rows, nil
}

func (c *Client) InsertRows(ctx context.Context, table string, rows []types.Row) error {
	if len(rows) == 0 {
		return nil
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal %s rows: %w", table, err)
	}
	_, err = c.do(ctx, http.MethodPost, "/rest/v1/"+table, nil, payload, map[string]string{"Prefer": "return=minimal"})
	return err
}

func (c *Client) UpdateRows(ctx context.Context, table string, filter types.Filter, patch types.Row) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal %s patch: %w", table, err)
	}
	_, err = c.do(ctx, http.MethodPatch, "/rest/v1/"+table, query(filter), payload, map[string]string{"Prefer": "return=minimal"})
	return err
}

// PutBlob uploads to the Storage API, overwriting any object at path, and
// returns the public object URL.
func (c *Client) PutBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	headers := map[string]string{
		"Content-Type": contentType,
		"x-upsert":     "true",
	}
	if _, err := c.do(ctx, http.MethodPost, "/storage/v1/object/"+bucket+"/"+path, nil, data, headers); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, path), nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, headers map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// query renders conditions in PostgREST's column=op.value form.
func query(f types.Filter) url.Values {
	q := url.Values{}
	for _, c := range f.Conds {
		switch c.Op {
		case types.OpIsNull:
			q.Add(c.Column, "is.null")
		case types.OpNotNull:
			q.Add(c.Column, "not.is.null")
		default:
			q.Add(c.Column, "eq."+fmt.Sprint(c.Value))
		}
	}
	return q
}
