// Package client is the REST boundary: every resource collection maps to one
// path under the configured base URL, request bodies and responses are JSON,
// and a bearer credential is attached when the auth collaborator provides one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"inventory-sync-service/internal/config"
	"inventory-sync-service/internal/logger"
)

// TokenSource is a common interface for anything returning bearer tokens.
type TokenSource interface {
	// GetToken for a given audience.
	GetToken(ctx context.Context, audience string) (string, error)
}

// StaticTokenSource returns the same token for every request.
type StaticTokenSource string

func (s StaticTokenSource) GetToken(ctx context.Context, audience string) (string, error) {
	return string(s), nil
}

type Client struct {
	baseURL       string
	http          *http.Client
	tokens        TokenSource
	retryAttempts int
	retryBackoff  time.Duration
}

func New(cfg config.APIConfig, tokens TokenSource) *Client {
	if tokens == nil && cfg.AuthToken != "" {
		tokens = StaticTokenSource(cfg.AuthToken)
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          &http.Client{Timeout: cfg.GetTimeout()},
		tokens:        tokens,
		retryAttempts: attempts,
		retryBackoff:  cfg.GetRetryBackoff(),
	}
}

// Get issues a GET and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Do issues a request with bounded retries. Only network-level failures and
// 5xx responses are retried; a 4xx is a rejected request and surfaces
// immediately as *HTTPError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("failed to encode request body: %v", err)}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * c.retryBackoff
			logger.Log.Debug("Retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, &NetworkError{Op: method + " " + path, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		data, err := c.do(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.GetToken(ctx, c.baseURL)
		if err != nil {
			return nil, &NetworkError{Op: "fetch token", Err: err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{Status: resp.StatusCode, Message: errorMessage(data, resp.StatusCode)}
	}
	return json.RawMessage(data), nil
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *NetworkError:
		return true
	case *HTTPError:
		return e.Status >= 500
	default:
		return false
	}
}

func errorMessage(body []byte, status int) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return http.StatusText(status)
}
