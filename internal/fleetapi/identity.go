package fleetapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// loggedInMessage is the body message the identity endpoint uses for success.
const loggedInMessage = "Logged In"

// LoginResult is the identity endpoint's answer to a successful sign-in.
type LoginResult struct {
	Message  string `json:"message"`
	FullName string `json:"full_name"`
	HomePage string `json:"home_page"`
}

type loginRequest struct {
	Usr string `json:"usr"`
	Pwd string `json:"pwd"`
}

// Login verifies credentials against the identity endpoint. A 2xx answer or a
// "Logged In" message is success; anything else is an *APIError carrying the
// upstream message, or a wrapped shared.ErrUpstreamUnavailable when the API
// cannot be reached.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, c.loginPath, nil, loginRequest{Usr: email, Pwd: password}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.EqualFold(apiErr.Message, loggedInMessage) {
			return &LoginResult{Message: loggedInMessage}, nil
		}
		return nil, err
	}
	return &out, nil
}

type messageEnvelope struct {
	Message json.RawMessage `json:"message"`
}

// UserDetails fetches the role and permission payload for email. The raw
// inner message object is returned undecoded; callers validate its shape.
func (c *Client) UserDetails(ctx context.Context, email string) (json.RawMessage, error) {
	var env messageEnvelope
	query := url.Values{"email": []string{email}}
	if err := c.do(ctx, http.MethodGet, c.userDetailsPath, query, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Message) == 0 {
		return nil, fmt.Errorf("fleetapi: user details for %s: empty message", email)
	}
	return env.Message, nil
}

// Logout asks the identity endpoint to invalidate the user's upstream session.
func (c *Client) Logout(ctx context.Context, userID string) error {
	err := c.do(ctx, http.MethodPost, c.logoutPath, nil, map[string]string{"usr": userID}, nil)
	return err
}
