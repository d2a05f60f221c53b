package common

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDataIntegrity marks a transaction history that cannot be replayed,
	// such as selling more shares than are held. It aborts the computation.
	ErrDataIntegrity = errors.New("data integrity fault")

	// ErrRateLimitExceeded is returned once the daily provider budget is spent.
	// Callers fall back to the last cached price.
	ErrRateLimitExceeded = errors.New("daily price request limit exceeded")

	// ErrProviderTimeout matches a ProviderError whose call timed out.
	ErrProviderTimeout = errors.New("price provider timeout")

	// ErrFXRateUnavailable is returned when no rate exists on or before the date.
	ErrFXRateUnavailable = errors.New("fx rate unavailable")
)

// DataIntegrityError describes an oversell detected during FIFO replay.
type DataIntegrityError struct {
	Account   string
	Symbol    string
	Date      time.Time
	Requested string
	Available string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity fault: account %s sold %s %s on %s with only %s held",
		e.Account, e.Requested, e.Symbol, FormatDate(e.Date), e.Available)
}

// Is lets errors.Is(err, ErrDataIntegrity) match.
func (e *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}

// ProviderErrorKind classifies provider failures.
type ProviderErrorKind string

const (
	ProviderTransient   ProviderErrorKind = "transient"
	ProviderRateLimited ProviderErrorKind = "rate_limited"
	ProviderNotFound    ProviderErrorKind = "not_found"
	ProviderTimedOut    ProviderErrorKind = "timeout"
	// ProviderRejected covers client errors such as a bad API key or request.
	ProviderRejected ProviderErrorKind = "rejected"
)

// ProviderError is returned by the external price provider adapter.
type ProviderError struct {
	Kind       ProviderErrorKind
	Symbol     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("price provider %s error", e.Kind)
	if e.Symbol != "" {
		msg += " for " + e.Symbol
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrProviderTimeout) match timeouts.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderTimeout && e.Kind == ProviderTimedOut
}

// NewProviderError builds a ProviderError, classifying context deadlines as timeouts.
func NewProviderError(kind ProviderErrorKind, symbol string, status int, err error) *ProviderError {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		kind = ProviderTimedOut
	}
	return &ProviderError{Kind: kind, Symbol: symbol, StatusCode: status, Err: err}
}

// IsRetryable reports whether a failed provider call may succeed if
// repeated now. Only transient failures and timeouts qualify.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == ProviderTransient || pe.Kind == ProviderTimedOut
}

// IsRateLimited reports whether err means no more provider calls should be
// made today: either the local budget is spent or the provider refused.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimitExceeded) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderRateLimited
}
