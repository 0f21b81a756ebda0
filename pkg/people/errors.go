package people

import (
	"errors"
	"fmt"
	"strings"
)

// Reasons a primary record produces no row.
var (
	// ErrUnfetchable means the primary record itself was absent or not a JSON object.
	ErrUnfetchable = errors.New("primary record unavailable")

	// ErrNoURL means the primary record has no canonical url.
	ErrNoURL = errors.New("primary record has no url")

	// ErrBadID means the canonical url has no trailing numeric segment.
	ErrBadID = errors.New("no numeric id in url")

	// ErrIncomplete means at least one reference set had a failed fetch.
	ErrIncomplete = errors.New("incomplete reference set")
)

// IncompleteError lists the reference sets that could not be fully resolved.
type IncompleteError struct {
	URL  string
	Sets []string
}

// Error implements the error interface.
func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s: %v (%s)", e.URL, ErrIncomplete, strings.Join(e.Sets, ", "))
}

// Unwrap lets errors.Is match ErrIncomplete.
func (e *IncompleteError) Unwrap() error {
	return ErrIncomplete
}

// DropReason maps an Assemble error to a short label for logs and metrics.
func DropReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncomplete):
		return "incomplete"
	case errors.Is(err, ErrNoURL):
		return "no_url"
	case errors.Is(err, ErrBadID):
		return "bad_id"
	case errors.Is(err, ErrUnfetchable):
		return "unfetchable"
	default:
		return "other"
	}
}
