package providers

import (
	"errors"
	"fmt"
	"strings"
)

// FailureReason classifies a provider error for retry and reporting
// decisions.
type FailureReason string

const (
	ReasonBilling          FailureReason = "billing"
	ReasonRateLimit        FailureReason = "rate_limit"
	ReasonAuth             FailureReason = "auth"
	ReasonTimeout          FailureReason = "timeout"
	ReasonServerError      FailureReason = "server_error"
	ReasonInvalidRequest   FailureReason = "invalid_request"
	ReasonModelUnavailable FailureReason = "model_unavailable"
	ReasonContentFilter    FailureReason = "content_filter"
	ReasonUnknown          FailureReason = "unknown"
)

// Retryable reports whether the same request may succeed if repeated
// against the same provider.
func (r FailureReason) Retryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	}
	return false
}

// ProviderError carries the classified reason alongside the provider and
// model that produced it.
type ProviderError struct {
	Reason   FailureReason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Reason, e.Provider)
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError classifies cause by message content. Use WithStatus when
// an HTTP status code is available, it is a stronger signal.
func NewProviderError(provider, model string, cause error) *ProviderError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ProviderError{
		Reason:   classifyMessage(msg),
		Provider: provider,
		Model:    model,
		Message:  msg,
		Cause:    cause,
	}
}

// WithStatus reclassifies the error from an HTTP status code.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if r := classifyStatus(status); r != ReasonUnknown {
		e.Reason = r
	}
	return e
}

func classifyStatus(status int) FailureReason {
	switch {
	case status == 402:
		return ReasonBilling
	case status == 429:
		return ReasonRateLimit
	case status == 401 || status == 403:
		return ReasonAuth
	case status == 404:
		return ReasonModelUnavailable
	case status == 400:
		return ReasonInvalidRequest
	case status >= 500:
		return ReasonServerError
	}
	return ReasonUnknown
}

func classifyMessage(msg string) FailureReason {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "quota") || strings.Contains(m, "billing") || strings.Contains(m, "payment"):
		return ReasonBilling
	case strings.Contains(m, "rate limit") || strings.Contains(m, "too many requests"):
		return ReasonRateLimit
	case strings.Contains(m, "unauthorized") || strings.Contains(m, "invalid api key") || strings.Contains(m, "authentication"):
		return ReasonAuth
	case strings.Contains(m, "timeout") || strings.Contains(m, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(m, "overloaded") || strings.Contains(m, "internal server") || strings.Contains(m, "service unavailable"):
		return ReasonServerError
	case strings.Contains(m, "content filter") || strings.Contains(m, "safety"):
		return ReasonContentFilter
	case strings.Contains(m, "model not found") || strings.Contains(m, "does not exist"):
		return ReasonModelUnavailable
	}
	return ReasonUnknown
}

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err is worth retrying against the same
// provider. Unclassified errors are treated as non-retryable.
func IsRetryable(err error) bool {
	if pe, ok := AsProviderError(err); ok {
		return pe.Reason.Retryable()
	}
	return false
}
