package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	completionsPath = "chat/completions"
	maxErrorBody    = 4096
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service returned status %d: %s", e.StatusCode, e.Body)
}

// Client opens streaming chat completions against an OpenAI-compatible service.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
}

func NewClient(baseURL, apiKey string) (*Client, error) {
	endpoint, err := buildEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		http: &http.Client{
			// No timeout: streams are long-lived and the context owns cancellation.
			Timeout: 0,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		endpoint: endpoint,
		apiKey:   apiKey,
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Open sends req and returns the response body once a 2xx status arrives.
// The caller must close the body.
func (c *Client) Open(ctx context.Context, req *Request) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header = requestHeaders(c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	return resp.Body, nil
}

func buildEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse service url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("service url %q must be an absolute http(s) url", baseURL)
	}
	return u.JoinPath(completionsPath).String(), nil
}

func requestHeaders(apiKey string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	return h
}
