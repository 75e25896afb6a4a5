// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/leofleet/fleet-console/internal/shared"
)

// StatusError is implemented by errors that carry their own HTTP status and a
// message safe to show to users, such as fleet API failures.
type StatusError interface {
	error
	HTTPStatus() int
	UserMessage() string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var se StatusError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrCSRFTokenMissing),
		errors.Is(err, shared.ErrCSRFTokenMismatch):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.As(err, &se):
		Problem(w, se.HTTPStatus(), http.StatusText(se.HTTPStatus()), se.UserMessage())
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		Problem(w, http.StatusBadGateway, "Bad Gateway", "fleet service unavailable")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
