package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/switchyard-ai/switchyard/catalog"
)

// ErrorType categorizes invocation failures for scheduling and fallback
// decisions.
type ErrorType string

const (
	// ErrorNone marks a successful outcome.
	ErrorNone ErrorType = "none"
	// ErrorRateLimited covers provider throttling and quota exhaustion.
	// Recoverable by waiting, retrying, or falling back.
	ErrorRateLimited ErrorType = "rate_limited"
	// ErrorContextExceeded covers inputs larger than the endpoint accepts.
	// Recoverable only by escalating to a larger-context endpoint.
	ErrorContextExceeded ErrorType = "context_exceeded"
	// ErrorTransient covers overload, timeouts, and other retryable faults.
	ErrorTransient ErrorType = "transient"
	// ErrorFatal covers endpoint-specific faults (credentials, billing,
	// unknown model). Never retried on the same endpoint; other endpoints
	// may still work.
	ErrorFatal ErrorType = "fatal"
)

// RateLimitError reports provider-side throttling for one endpoint.
type RateLimitError struct {
	Endpoint catalog.EndpointID
	Cause    error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Endpoint, e.Cause)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// ContextExceededError reports an input too large for one endpoint.
type ContextExceededError struct {
	Endpoint        catalog.EndpointID
	EstimatedTokens int
	MaxContext      int
	Cause           error
}

func (e *ContextExceededError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: context exceeded: %v", e.Endpoint, e.Cause)
	}
	return fmt.Sprintf("%s: context exceeded: estimated %d tokens, window %d",
		e.Endpoint, e.EstimatedTokens, e.MaxContext)
}

func (e *ContextExceededError) Unwrap() error { return e.Cause }

// TransientError reports a retryable fault on one endpoint.
type TransientError struct {
	Endpoint catalog.EndpointID
	Cause    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Endpoint, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError reports an endpoint-specific fault that retrying cannot fix.
type FatalError struct {
	Endpoint catalog.EndpointID
	Cause    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: fatal: %v", e.Endpoint, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }

// TypeOf returns the taxonomy class of an already-classified error, or
// ErrorNone for nil and ErrorTransient for unclassified errors.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ErrorNone
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ErrorRateLimited
	}
	var ce *ContextExceededError
	if errors.As(err, &ce) {
		return ErrorContextExceeded
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return ErrorFatal
	}
	return ErrorTransient
}

// Retryable reports whether the class permits another attempt on the same
// endpoint (bounded by the retry policy).
func Retryable(t ErrorType) bool {
	return t == ErrorRateLimited || t == ErrorTransient
}

// IsFailover reports whether the class should put the endpoint in cooldown
// and move the call to another endpoint. Context overflow is an input
// problem, not endpoint health, so it escalates instead of cooling down.
func IsFailover(t ErrorType) bool {
	switch t {
	case ErrorRateLimited, ErrorTransient, ErrorFatal:
		return true
	}
	return false
}

// Classifier maps raw provider errors to the taxonomy. Provider error
// formats vary wildly, so classification stays pluggable; KeywordClassifier
// is the default.
type Classifier interface {
	Classify(err error) ErrorType
}

// KeywordClassifier is the default Classifier. Typed SDK errors carry their
// HTTP status directly and are classified from it first; everything else is
// classified by case-insensitive substring matching on the error text,
// checked in order of specificity.
type KeywordClassifier struct{}

// Classify implements Classifier.
func (KeywordClassifier) Classify(err error) ErrorType {
	if err == nil {
		return ErrorNone
	}
	if code, ok := statusCode(err); ok {
		if t := classifyStatus(code, err); t != ErrorNone {
			return t
		}
	}
	return ClassifyMessage(err.Error())
}

// statusCode extracts the HTTP status from the typed errors the provider
// SDKs return. xai-go surfaces plain errors whose text carries the status,
// so those go through message matching instead.
func statusCode(err error) (int, bool) {
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return aerr.StatusCode, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// classifyStatus maps an HTTP status to the taxonomy. ErrorNone means the
// status alone is not conclusive and the message text decides.
func classifyStatus(code int, err error) ErrorType {
	switch {
	case code == 429:
		return ErrorRateLimited
	case code == 413:
		return ErrorContextExceeded
	case code == 400 && IsContextExceededMessage(err.Error()):
		return ErrorContextExceeded
	case code == 401, code == 402, code == 403, code == 404:
		return ErrorFatal
	case code >= 500:
		return ErrorTransient
	}
	return ErrorNone
}

// ClassifyMessage determines the error type from an error message.
// Unmatched messages default to transient: bounded retry then fallback is
// the safe treatment for a fault we cannot name.
func ClassifyMessage(msg string) ErrorType {
	if msg == "" {
		return ErrorTransient
	}
	// Context overflow before rate limits: "request_too_large" style
	// messages must not be mistaken for quota trouble.
	if IsContextExceededMessage(msg) {
		return ErrorContextExceeded
	}
	if IsRateLimitMessage(msg) {
		return ErrorRateLimited
	}
	if IsFatalMessage(msg) {
		return ErrorFatal
	}
	return ErrorTransient
}

// IsContextExceededMessage checks if a message indicates context overflow.
func IsContextExceededMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	// OpenAI / OpenRouter
	if strings.Contains(lower, "context_length_exceeded") {
		return true
	}

	// Anthropic
	if strings.Contains(lower, "context length exceeded") ||
		strings.Contains(lower, "prompt is too long") {
		return true
	}

	// Common patterns
	if strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "request_too_large") ||
		strings.Contains(lower, "request exceeds the maximum size") ||
		strings.Contains(lower, "exceeds model context window") ||
		strings.Contains(lower, "context size has been exceeded") ||
		strings.Contains(lower, "context overflow") ||
		strings.Contains(lower, "input is too long") ||
		strings.Contains(lower, "too many tokens") {
		return true
	}

	// HTTP 413 with size indication
	if strings.Contains(lower, "413") && strings.Contains(lower, "too large") {
		return true
	}

	return false
}

// IsRateLimitMessage checks if a message indicates rate limiting or quota
// exhaustion.
func IsRateLimitMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	// HTTP 429
	if strings.Contains(lower, "429") {
		return true
	}

	// Common patterns
	if strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "exceeded your current quota") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "resource has been exhausted") ||
		strings.Contains(lower, "requests per minute") ||
		strings.Contains(lower, "requests per day") ||
		strings.Contains(lower, "tokens per minute") {
		return true
	}

	return false
}

// IsFatalMessage checks if a message indicates an endpoint-specific fault
// (credentials, billing, missing model) that retrying the same endpoint
// cannot fix.
func IsFatalMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	// HTTP 401, 402, 403, 404
	if strings.Contains(lower, "401") || strings.Contains(lower, "402") ||
		strings.Contains(lower, "403") || strings.Contains(lower, "404") {
		return true
	}

	// Credentials
	if strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "no api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "authentication") ||
		strings.Contains(lower, "invalid credentials") {
		return true
	}

	// Billing
	if strings.Contains(lower, "payment required") ||
		strings.Contains(lower, "insufficient credits") ||
		strings.Contains(lower, "insufficient_quota") ||
		strings.Contains(lower, "credit balance") ||
		strings.Contains(lower, "billing") {
		return true
	}

	// Missing or retired model
	if strings.Contains(lower, "model_not_found") ||
		strings.Contains(lower, "model not found") ||
		strings.Contains(lower, "does not exist or you do not have access") ||
		strings.Contains(lower, "unknown model") ||
		strings.Contains(lower, "has been deprecated") {
		return true
	}

	return false
}

// FormatForUser returns a short human-readable description for an error
// class, used by callers that surface terminal failures.
func FormatForUser(t ErrorType, msg string) string {
	switch t {
	case ErrorRateLimited:
		return "rate limited: the provider is throttling requests"
	case ErrorContextExceeded:
		return "input too large for the model's context window"
	case ErrorFatal:
		return fmt.Sprintf("endpoint rejected the request: %s", msg)
	case ErrorTransient:
		return fmt.Sprintf("temporary provider failure: %s", msg)
	default:
		return msg
	}
}
