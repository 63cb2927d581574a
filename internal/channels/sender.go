// Package channels holds the provider senders used by dispatch workers.
package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/models"
)

// Failure codes reported by senders and surfaced as job failed reasons.
const (
	CodeInvalidRecipient    = "invalid_recipient"
	CodeCredentialsRevoked  = "credentials_revoked"
	CodeCredentialsMissing  = "credentials_missing"
	CodeMalformedPayload    = "malformed_payload"
	CodeRateLimited         = "rate_limited"
	CodeProviderUnavailable = "provider_unavailable"
)

type SendRequest struct {
	Channel        models.Channel
	To             string
	Message        string
	SenderIdentity string
	IdempotencyKey string
	Credentials    credentials.Credentials
}

type SendResult struct {
	ExternalID string `json:"external_id"`
}

type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// SendError classifies a provider failure.
type SendError struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func permanent(code string, err error) *SendError {
	return &SendError{Code: code, Err: err}
}

func transient(code string, err error) *SendError {
	return &SendError{Code: code, Retryable: true, Err: err}
}

// IsRetryable treats unclassified errors (network, timeouts) as transient.
func IsRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}

// Code returns the failure code, or "" for unclassified errors.
func Code(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// PermanentError builds a non-retryable SendError for callers outside the package.
func PermanentError(code string, err error) error {
	return permanent(code, err)
}
