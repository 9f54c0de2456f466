// Package ai abstracts the external AI completion collaborator.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedResponse indicates the provider answered but the payload was not
// usable. It is classified transient so the step retry policy applies.
var ErrMalformedResponse = errors.New("malformed provider response")

// ErrorKind classifies provider failures for the retry policy.
type ErrorKind int

const (
	// Transient failures (rate limits, 5xx, network) are retried with backoff.
	Transient ErrorKind = iota
	// Permanent failures (bad request, auth) fail the step immediately.
	Permanent
)

// ProviderError wraps a completion failure with its retry classification.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Kind == Transient {
		return fmt.Sprintf("transient provider error: %v", e.Err)
	}

	return fmt.Sprintf("permanent provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable provider error.
func NewTransient(err error) *ProviderError {
	return &ProviderError{Kind: Transient, Err: err}
}

// NewPermanent wraps err as a non-retryable provider error.
func NewPermanent(err error) *ProviderError {
	return &ProviderError{Kind: Permanent, Err: err}
}

// IsTransient checks if an error is a retryable provider failure.
func IsTransient(err error) bool {
	var providerErr *ProviderError

	return errors.As(err, &providerErr) && providerErr.Kind == Transient
}

// IsPermanent checks if an error is a non-retryable provider failure.
func IsPermanent(err error) bool {
	var providerErr *ProviderError

	return errors.As(err, &providerErr) && providerErr.Kind == Permanent
}

// Request is a single completion call.
type Request struct {
	Prompt    string
	Model     string
	MaxTokens int
}

// Provider is the AI completion collaborator contract.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}
