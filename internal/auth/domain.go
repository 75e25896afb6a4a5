package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

// IdentitySource is the external identity API. *fleetapi.Client satisfies it.
type IdentitySource interface {
	Login(ctx context.Context, email, password string) (*fleetapi.LoginResult, error)
	UserDetails(ctx context.Context, email string) (json.RawMessage, error)
	Logout(ctx context.Context, userID string) error
}

// Source tells where a resolved profile came from.
type Source string

// Profile sources.
const (
	SourceNone        Source = "none"
	SourceCached      Source = "cached"
	SourceRefreshed   Source = "refreshed"
	SourcePlaceholder Source = "placeholder"
)

// Resolution is the outcome of resolving a session.
type Resolution struct {
	// Profile is nil when the request is unauthenticated.
	Profile *rbac.Profile
	Source  Source
	// Changed reports that Profile differs from the cookie blob and the
	// caller should persist it.
	Changed bool
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	Token     string
	SessionID string
	Profile   *rbac.Profile
	Degraded  bool
}

// ClientMeta describes the browser that signed in, for the audit trail.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// LoginRecord is one row of the login audit trail.
type LoginRecord struct {
	ID        uuid.UUID
	UserID    string
	Email     string
	Degraded  bool
	IP        string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CredentialError is the identity API refusing a sign-in. Message is the
// upstream text suitable for display.
type CredentialError struct {
	Message string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("auth: %v: %s", shared.ErrInvalidCredentials, e.Message)
}

// Unwrap matches shared.ErrInvalidCredentials.
func (e *CredentialError) Unwrap() error {
	return shared.ErrInvalidCredentials
}

// EncodeProfile serializes a profile for the session cookie.
func EncodeProfile(p *rbac.Profile) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("auth: encode profile: %w", shared.ErrUnauthenticated)
	}
	return json.Marshal(p)
}

// DecodeProfile parses a cookie blob. Empty, non-JSON or identity-less blobs
// yield shared.ErrMalformedSession.
func DecodeProfile(blob []byte) (*rbac.Profile, error) {
	if len(blob) == 0 {
		return nil, shared.ErrMalformedSession
	}
	var p rbac.Profile
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedSession, err)
	}
	if p.ID == "" && p.Email == "" {
		return nil, fmt.Errorf("%w: profile without identity", shared.ErrMalformedSession)
	}
	p.Normalize()
	return &p, nil
}
