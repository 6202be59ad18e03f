// Package cms reads and writes documents in the headless CMS through its
// GROQ query and mutation HTTP API.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var ErrNotFound = errors.New("cms: document not found")

// APIError is a non-2xx answer the upstream guard let through.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cms: status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	// BaseURL overrides the project API host, mostly for tests.
	BaseURL    string
	ReadToken  string
	WriteToken string
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	base       string
	dataset    string
	readToken  string
	writeToken string
	hc         Doer
}

func NewClient(cfg Config, hc Doer) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.api.sanity.io", cfg.ProjectID)
	}

	version := cfg.APIVersion
	if version == "" {
		version = "2024-01-01"
	}

	dataset := cfg.Dataset
	if dataset == "" {
		dataset = "production"
	}

	return &Client{
		base:       base + "/v" + strings.TrimPrefix(version, "v"),
		dataset:    dataset,
		readToken:  cfg.ReadToken,
		writeToken: cfg.WriteToken,
		hc:         hc,
	}
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

// Query runs a GROQ query and decodes its result into out. Params are
// passed as $name bindings. A null result is ErrNotFound.
func (c *Client) Query(ctx context.Context, groq string, params map[string]any, out any) error {
	const op = "cms.Client.Query"

	q := url.Values{}
	q.Set("query", groq)
	for k, v := range params {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: param %s: %w", op, k, err)
		}
		q.Set("$"+k, string(b))
	}

	u := fmt.Sprintf("%s/data/query/%s?%s", c.base, url.PathEscape(c.dataset), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if c.readToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.readToken)
	}

	body, err := c.send(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}

	if len(qr.Result) == 0 || string(qr.Result) == "null" {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	if err := json.Unmarshal(qr.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", op, err)
	}

	return nil
}

// Mutation is one entry of a mutate call. Exactly one field is set.
type Mutation struct {
	Create          map[string]any `json:"create,omitempty"`
	CreateOrReplace map[string]any `json:"createOrReplace,omitempty"`
	Patch           *Patch         `json:"patch,omitempty"`
	Delete          *DeleteByID    `json:"delete,omitempty"`
}

type Patch struct {
	ID  string         `json:"id"`
	Set map[string]any `json:"set"`
}

type DeleteByID struct {
	ID string `json:"id"`
}

type MutationResult struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Document  json.RawMessage `json:"document,omitempty"`
}

type mutateResponse struct {
	TransactionID string           `json:"transactionId"`
	Results       []MutationResult `json:"results"`
}

// Mutate applies mutations in one transaction using the write token and
// returns the affected documents.
func (c *Client) Mutate(ctx context.Context, mutations ...Mutation) ([]MutationResult, error) {
	const op = "cms.Client.Mutate"

	if c.writeToken == "" {
		return nil, fmt.Errorf("%s: write token not configured", op)
	}

	b, err := json.Marshal(map[string]any{"mutations": mutations})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u := fmt.Sprintf("%s/data/mutate/%s?returnIds=true&returnDocuments=true", c.base, url.PathEscape(c.dataset))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.writeToken)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var mr mutateResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return mr.Results, nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
