package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch failure classes and seed validation.
var (
	ErrFetchStatus  = errors.New("non-2xx status")
	ErrFetchNetwork = errors.New("network error")
	ErrFetchTimeout = errors.New("request timed out")
	ErrInvalidSeed  = errors.New("invalid start url")
)

// FailureKind classifies a failed fetch.
type FailureKind int

// Failure kinds. The crawler treats all of them as a skip.
const (
	FailureNetwork FailureKind = iota
	FailureStatus
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureStatus:
		return "status"
	case FailureTimeout:
		return "timeout"
	default:
		return "network"
	}
}

// FetchError is returned by Fetcher implementations.
type FetchError struct {
	URL        string
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FailureStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.sentinel())
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.sentinel(), e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the failure kind.
func (e *FetchError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *FetchError) sentinel() error {
	switch e.Kind {
	case FailureStatus:
		return ErrFetchStatus
	case FailureTimeout:
		return ErrFetchTimeout
	default:
		return ErrFetchNetwork
	}
}
