package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned at construction when a provider is not configured.
	ErrMissingCredentials = errors.New("provider credentials are not configured")
	// ErrUnknownProvider is returned by the registry for an unregistered name.
	ErrUnknownProvider = errors.New("unknown backlink provider")
	// ErrRateLimited marks a response the provider throttled (HTTP 429).
	ErrRateLimited = errors.New("provider rate limit exceeded")
)

// FetchError is returned when a provider call fails for good, either
// immediately or after the retry budget is exhausted.
type FetchError struct {
	Provider   string
	Operation  string
	StatusCode int
	Attempts   int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s fetch failed", e.Provider, e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}
