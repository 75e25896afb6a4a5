package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates the request carries no usable session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the session lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUpstreamUnavailable indicates the fleet API could not be reached or failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedSession indicates the persisted profile blob could not be decoded.
	ErrMalformedSession = errors.New("malformed session data")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
