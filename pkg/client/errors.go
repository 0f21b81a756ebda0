package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrEmptyURL is reported for a reference whose URL is blank.
	ErrEmptyURL = errors.New("empty url")

	// ErrNotJSON is reported when a 2xx body cannot be parsed as JSON.
	ErrNotJSON = errors.New("response body is not valid JSON")
)

// FetchError describes why a single GET did not produce a JSON document.
// It never escapes the client as a returned error; callers find it on Result.Err.
type FetchError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s error (status %d): %s: %v",
			e.URL, e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error (status %d): %s",
		e.URL, e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
