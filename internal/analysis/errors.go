package analysis

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies provider failures so callers can choose a
// retry or fallback policy without string matching.
type FetchErrorKind string

const (
	// FetchNotFound - the provider does not know the symbol
	FetchNotFound FetchErrorKind = "not_found"
	// FetchRateLimited - the provider rejected the call due to rate limits
	FetchRateLimited FetchErrorKind = "rate_limited"
	// FetchUnavailable - network failure or provider outage
	FetchUnavailable FetchErrorKind = "unavailable"
)

// ValidationError rejects malformed symbols or exchanges before any I/O.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// DataFetchError reports a market-data provider failure. The coordinator
// never retries these itself; callers decide between propagating and the
// degraded stale fallback.
type DataFetchError struct {
	Symbol string
	Kind   FetchErrorKind
	Err    error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("market data fetch failed for %s (%s): %v", e.Symbol, e.Kind, e.Err)
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}

// NewDataFetchError wraps a provider failure with its classification.
func NewDataFetchError(symbol string, kind FetchErrorKind, err error) *DataFetchError {
	return &DataFetchError{Symbol: symbol, Kind: kind, Err: err}
}

// DecisionError reports an AI provider failure. It is independent of data
// fetching: fresh data may have been cached even when this is returned.
type DecisionError struct {
	Symbol string
	Err    error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision failed for %s: %v", e.Symbol, e.Err)
}

func (e *DecisionError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a storage failure. Fatal to the current request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDataFetch reports whether err is a DataFetchError, returning it when so.
func IsDataFetch(err error) (*DataFetchError, bool) {
	var fe *DataFetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsDecision reports whether err is a DecisionError.
func IsDecision(err error) bool {
	var de *DecisionError
	return errors.As(err, &de)
}
