// Package fleetapi talks to the external fleet/ERP REST API: the per-entity
// resource collections and the identity endpoints used for sign-in.
package fleetapi

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
	"time"

	"github.com/leofleet/fleet-console/internal/shared"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// Config describes how to reach the fleet API.
type Config struct {
	BaseURL         string
	APIKey          string
	APISecret       string
	Timeout         time.Duration
	LoginPath       string
	LogoutPath      string
	UserDetailsPath string
}

// Client wraps interactions with the fleet API.
type Client struct {
	baseURL         string
	authorization   string
	loginPath       string
	logoutPath      string
	userDetailsPath string
	httpClient      *http.Client
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		loginPath:       defaultString(cfg.LoginPath, "/api/method/login"),
		logoutPath:      defaultString(cfg.LogoutPath, "/api/method/logout"),
		userDetailsPath: defaultString(cfg.UserDetailsPath, "/api/method/fleet.api.get_user_details"),
		httpClient:      &http.Client{Timeout: timeout},
	}
	if cfg.APIKey != "" || cfg.APISecret != "" {
		c.authorization = "token " + cfg.APIKey + ":" + cfg.APISecret
	}
	return c
}

// APIError is a non-2xx answer from the fleet API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fleetapi: status %d: %s", e.Status, e.Message)
}

// HTTPStatus maps the upstream status onto the status returned to our callers.
func (e *APIError) HTTPStatus() int {
	switch {
	case e.Status == http.StatusNotFound,
		e.Status == http.StatusConflict,
		e.Status == http.StatusUnprocessableEntity,
		e.Status == http.StatusBadRequest:
		return e.Status
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// UserMessage returns the upstream message intended for users.
func (e *APIError) UserMessage() string {
	return e.Message
}

// Unwrap lets callers match upstream outages with shared.ErrUpstreamUnavailable.
func (e *APIError) Unwrap() error {
	if e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests {
		return shared.ErrUpstreamUnavailable
	}
	if e.Status == http.StatusNotFound {
		return shared.ErrNotFound
	}
	return nil
}

// IsCredentialRejection reports whether err is the API refusing credentials
// rather than the API being unreachable.
func IsCredentialRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
}

type errorBody struct {
	Message   json.RawMessage `json:"message"`
	Exception string          `json:"exception"`
}

// do sends a JSON request and decodes a 2xx JSON answer into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("fleetapi: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("fleetapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fleetapi: %s %s: %w: %v", method, path, shared.ErrUpstreamUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("fleetapi: read body: %w: %v", shared.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: extractMessage(raw, resp.StatusCode)}
	}
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("fleetapi: decode %s: %w: %v", path, shared.ErrUpstreamUnavailable, err)
		}
	}
	return nil
}

// extractMessage prefers {message}, then {exception}, then the status text.
func extractMessage(raw []byte, status int) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		var msg string
		if len(body.Message) > 0 && json.Unmarshal(body.Message, &msg) == nil && strings.TrimSpace(msg) != "" {
			return msg
		}
		if strings.TrimSpace(body.Exception) != "" {
			return body.Exception
		}
	}
	return http.StatusText(status)
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
