package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataIntegrityError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("replay: %w", &DataIntegrityError{
		Account: "acct-1", Symbol: "AAPL", Date: Date(2024, 1, 2), Requested: "5", Available: "3",
	})
	assert.True(t, errors.Is(err, ErrDataIntegrity))
	assert.Contains(t, err.Error(), "AAPL")
	assert.Contains(t, err.Error(), "2024-01-02")
}

func TestProviderError_Classification(t *testing.T) {
	timeout := NewProviderError(ProviderTransient, "AAPL", 0, context.DeadlineExceeded)
	assert.Equal(t, ProviderTimedOut, timeout.Kind)
	assert.True(t, errors.Is(timeout, ErrProviderTimeout))

	notFound := NewProviderError(ProviderNotFound, "XXXX", 404, nil)
	assert.False(t, errors.Is(notFound, ErrProviderTimeout))

	limited := NewProviderError(ProviderRateLimited, "AAPL", 429, nil)
	assert.Contains(t, limited.Error(), "status 429")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", NewProviderError(ProviderTransient, "AAPL", 503, nil), true},
		{"timeout", fmt.Errorf("wrapped: %w", NewProviderError(ProviderTransient, "AAPL", 0, context.DeadlineExceeded)), true},
		{"not found", NewProviderError(ProviderNotFound, "XXXX", 404, nil), false},
		{"rejected", NewProviderError(ProviderRejected, "AAPL", 401, nil), false},
		{"provider rate limited", NewProviderError(ProviderRateLimited, "AAPL", 429, nil), false},
		{"budget spent", ErrRateLimitExceeded, false},
		{"integrity", ErrDataIntegrity, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"budget spent", fmt.Errorf("fetch: %w", ErrRateLimitExceeded), true},
		{"provider 429", NewProviderError(ProviderRateLimited, "AAPL", 429, nil), true},
		{"provider 402", fmt.Errorf("wrapped: %w", NewProviderError(ProviderRateLimited, "AAPL", 402, nil)), true},
		{"transient", NewProviderError(ProviderTransient, "AAPL", 500, nil), false},
		{"not found", ErrNotFound, false},
	}
	for _, tt := range tests {
		if got := IsRateLimited(tt.err); got != tt.want {
			t.Errorf("IsRateLimited(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
