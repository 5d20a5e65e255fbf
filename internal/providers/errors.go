package providers

import (
	"context"
	"errors"
	"fmt"
	"net"

	"idserver/internal/identity"
	dErrors "idserver/pkg/domain-errors"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the provider took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the provider returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorProviderOutage indicates the provider is unavailable
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorNotFound indicates the requested session doesn't exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorVerificationFailed means the vendor answered and the person did
	// not pass. This is the only category that fails a session.
	ErrorVerificationFailed ErrorCategory = "verification_failed"

	// ErrorCanceled means the caller gave up before the vendor answered. It
	// says nothing about the vendor's health.
	ErrorCanceled ErrorCategory = "canceled"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// ProviderError wraps provider failures with normalized categorization
type ProviderError struct {
	Category   ErrorCategory
	Provider   identity.Provider
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Category == ErrorVerificationFailed {
		return e.Message
	}
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// ErrorCode maps the category onto the API error taxonomy.
func (e *ProviderError) ErrorCode() dErrors.Code {
	switch {
	case e.Category == ErrorVerificationFailed:
		return dErrors.CodeVerificationFailed
	case e.Retryable:
		return dErrors.CodeUnavailable
	case e.Category == ErrorCanceled:
		return dErrors.CodeTimeout
	case e.Category == ErrorNotFound:
		return dErrors.CodeNotFound
	case e.Category == ErrorBadData:
		return dErrors.CodeBadRequest
	default:
		return dErrors.CodeInternal
	}
}

// NewProviderError creates a new normalized provider error
func NewProviderError(category ErrorCategory, provider identity.Provider, message string, underlying error) *ProviderError {
	retryable := category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited

	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// VerificationFailed reports an explicit negative outcome. reason is stored
// on the session verbatim.
func VerificationFailed(provider identity.Provider, reason string) *ProviderError {
	return NewProviderError(ErrorVerificationFailed, provider, reason, nil)
}

// Birthdate normalizes a vendor date of birth. A value that does not parse
// is bad data: committing it as absent would zero the leaf's birthdate and
// weaken both Sybil fingerprints.
func Birthdate(provider identity.Provider, field, value string) (string, error) {
	d, err := identity.NormalizeDate(value)
	if err != nil {
		return "", NewProviderError(ErrorBadData, provider, field, err)
	}
	return d, nil
}

// CompletionDate normalizes an informational timestamp; one that does not
// parse is left empty.
func CompletionDate(value string) string {
	d, _ := identity.NormalizeDate(value)
	return d
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// FailureReason returns the reason of an explicit verification failure.
func FailureReason(err error) (string, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Category == ErrorVerificationFailed {
		return pe.Message, true
	}
	return "", false
}

// classifyTransport maps a client.Do failure to a category.
func classifyTransport(err error) ErrorCategory {
	if errors.Is(err, context.Canceled) {
		return ErrorCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	return ErrorProviderOutage
}

// classifyStatus maps a non-2xx HTTP status to a category.
func classifyStatus(status int) ErrorCategory {
	switch {
	case status == 401 || status == 403:
		return ErrorAuthentication
	case status == 404:
		return ErrorNotFound
	case status == 429:
		return ErrorRateLimited
	case status == 408 || status == 504:
		return ErrorTimeout
	case status >= 500:
		return ErrorProviderOutage
	default:
		return ErrorBadData
	}
}
