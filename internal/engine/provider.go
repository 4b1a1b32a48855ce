package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a single provider call failure. The kind
// decides whether the Source Router advances to the next provider.
type FailureKind string

const (
	// FailAuth means the provider rejected our credentials.
	FailAuth FailureKind = "authentication_failure"
	// FailRateLimited means the provider throttled us.
	FailRateLimited FailureKind = "rate_limited"
	// FailNotFound means the provider has no data for that date/place.
	// Absence of data is informative and never triggers fallback.
	FailNotFound FailureKind = "not_found"
	// FailUnavailable covers network errors, timeouts, 5xx responses
	// and open circuit breakers.
	FailUnavailable FailureKind = "unavailable"
	// FailMalformed means the provider answered with an unparseable body.
	FailMalformed FailureKind = "malformed"
)

// ProviderError is the typed failure a provider client reports.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure should advance the fallback
// chain. NotFound and Malformed are terminal for the answering provider.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case FailAuth, FailRateLimited, FailUnavailable:
		return true
	}
	return false
}

// NewProviderError builds a typed failure for the named provider.
func NewProviderError(provider string, kind FailureKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// FailureKindOf extracts the failure kind from an error chain, or ""
// when the error is not a provider failure.
func FailureKindOf(err error) FailureKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Aggregate-layer sentinels.
var (
	// ErrInvalidParameters is reported before any network call and is
	// never retried.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInsufficientData means zero usable data points remained for a
	// variable after sampling.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNoDataAvailable means every variable pipeline failed.
	ErrNoDataAvailable = errors.New("no data available")
)

// Provider abstracts one upstream historical-weather archive. Fetch
// returns the daily observation for a single historical date, or a
// *ProviderError describing why it could not.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, coord Coordinate, date time.Time) (*Observation, error)
}
