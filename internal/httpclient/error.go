package httpclient

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	ierr "backoffice/internal/errors"
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Response   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, truncate(string(e.Response), 200))
}

// NewError wraps a non-2xx response. 404 and 422 additionally carry the
// not-found and validation marks so handlers can answer with the right status.
func NewError(statusCode int, response []byte) error {
	base := &Error{StatusCode: statusCode, Response: response}
	b := ierr.WithError(base)
	if msg := apiMessage(response); msg != "" {
		b = b.WithHint(msg)
	}
	err := b.Mark(ierr.ErrHTTPClient)

	switch statusCode {
	case http.StatusNotFound:
		return ierr.WithError(err).Mark(ierr.ErrNotFound)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return ierr.WithError(err).Mark(ierr.ErrValidation)
	case http.StatusConflict:
		return ierr.WithError(err).Mark(ierr.ErrConflict)
	case http.StatusUnauthorized, http.StatusForbidden:
		return ierr.WithError(err).Mark(ierr.ErrPermissionDenied)
	}
	return err
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if goerrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// apiMessage pulls a readable message out of the API's error body:
// {"error": "..."}, {"message": "..."} or {"errors": {"field": ["..."]}}.
func apiMessage(body []byte) string {
	var payload struct {
		Error   string              `json:"error"`
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if payload.Error != "" {
		return payload.Error
	}
	var parts []string
	for field, msgs := range payload.Errors {
		for _, m := range msgs {
			parts = append(parts, field+" "+m)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
