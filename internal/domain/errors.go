// Package domain contains the core domain models for the campaign lead pipeline.
package domain

import "errors"

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrConflict is returned when a job cannot start or be created because
// another job for the same campaign is already running, or when an
// idempotency key collides.
var ErrConflict = errors.New("conflicting job for campaign")

// ErrInvalidCampaign is returned when creating a campaign with invalid fields.
var ErrInvalidCampaign = errors.New("invalid campaign")

// ErrInvalidJob is returned when creating a campaign job with invalid fields.
var ErrInvalidJob = errors.New("invalid campaign job")

// Provider and sheet error taxonomy. The runner classifies failures with
// errors.Is against these sentinels to decide between retryable and terminal
// outcomes.
var (
	// ErrRateLimited signals the provider rejected the call with a 429.
	// Retryable via explicit retry with backoff.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrProviderServer signals a provider-side 5xx failure. Retryable.
	ErrProviderServer = errors.New("provider server error")

	// ErrProviderClient signals a provider 4xx failure (bad filters, auth).
	// Terminal.
	ErrProviderClient = errors.New("provider client error")

	// ErrSheetWrite signals the external sheet append failed. Terminal for
	// the job: silent partial writes are worse than a loud failure.
	ErrSheetWrite = errors.New("sheet write failed")

	// ErrTimeout signals a network timeout talking to the provider.
	// Retryable, treated like a rate limit for backoff purposes.
	ErrTimeout = errors.New("provider call timed out")
)

// IsRetryable reports whether a provider/sheet error leaves the job eligible
// for an explicit retry. Sheet and client errors are terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderServer) ||
		errors.Is(err, ErrTimeout)
}
