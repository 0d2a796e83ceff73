// Package apiclient talks to the remote Device API and to the push
// dispatch backend.
package apiclient

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
)

// Sentinel errors for common failure classes.
var (
	// ErrUnreachable means no HTTP response was received at all.
	ErrUnreachable   = errors.New("server unreachable")
	ErrEmptyResponse = errors.New("empty response body")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
)

// APIError is a response with status >= 400.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Is maps well-known statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsTransient reports whether err means the request never reached the
// server, so repeating it later may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// Client is an HTTP client for one base URL.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a new client. An empty token sends no Authorization header.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// errorBody is the standard error body from the push backend.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	respBody, err := c.doRequest(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return decode(respBody, result)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: read response: %v", method, path, ErrUnreachable, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil {
			apiErr.Message = eb.Error
		}
		return nil, apiErr
	}

	return respBody, nil
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
