package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want ErrorType
	}{
		// Rate limiting across providers.
		{"http 429", "429 Too Many Requests", ErrorRateLimited},
		{"openai quota", "You exceeded your current quota, please check your plan", ErrorRateLimited},
		{"generic quota", "quota exceeded for this project", ErrorRateLimited},
		{"google style", "RESOURCE_EXHAUSTED: Quota exceeded", ErrorRateLimited},
		{"anthropic rpm", "Number of requests per minute has been exceeded", ErrorRateLimited},
		{"rpd", "rate limit: requests per day reached", ErrorRateLimited},
		{"snake case", "rate_limit_error: slow down", ErrorRateLimited},

		// Context overflow across providers.
		{"openai context", "This model's maximum context length is 128000 tokens", ErrorContextExceeded},
		{"openai code", "error code context_length_exceeded", ErrorContextExceeded},
		{"anthropic prompt", "prompt is too long: 210000 tokens > 200000 maximum", ErrorContextExceeded},
		{"request too large", "Error code: 413 - request_too_large", ErrorContextExceeded},
		{"lm studio", "the context size has been exceeded", ErrorContextExceeded},
		{"generic window", "input exceeds model context window", ErrorContextExceeded},

		// Fatal, endpoint-specific faults.
		{"bad key", "Incorrect API key provided: sk-xxxx", ErrorFatal},
		{"http 401", "401 Unauthorized", ErrorFatal},
		{"http 403", "403 Forbidden: access denied", ErrorFatal},
		{"billing", "Your credit balance is too low to access the API", ErrorFatal},
		{"insufficient quota", "insufficient_quota: plan limit", ErrorFatal},
		{"missing model", "The model `gpt-5-turbo` does not exist or you do not have access to it", ErrorFatal},

		// Everything else is transient.
		{"overloaded", "overloaded_error: try again shortly", ErrorTransient},
		{"http 503", "503 Service Unavailable", ErrorTransient},
		{"timeout", "request timed out after 60s", ErrorTransient},
		{"connection", "connection reset by peer", ErrorTransient},
		{"empty", "", ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyMessage(tt.msg); got != tt.want {
				t.Errorf("ClassifyMessage(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassifyOrderingContextBeforeRateLimit(t *testing.T) {
	// A 413 "too large" body must escalate context, not trip quota handling,
	// even when the provider decorates it with throttling language.
	msg := "413 request_too_large: request exceeds the maximum size"
	if got := ClassifyMessage(msg); got != ErrorContextExceeded {
		t.Errorf("ClassifyMessage = %v, want %v", got, ErrorContextExceeded)
	}
}

func TestKeywordClassifier(t *testing.T) {
	var c KeywordClassifier
	if got := c.Classify(nil); got != ErrorNone {
		t.Errorf("Classify(nil) = %v, want %v", got, ErrorNone)
	}
	if got := c.Classify(errors.New("429 too many requests")); got != ErrorRateLimited {
		t.Errorf("Classify = %v, want %v", got, ErrorRateLimited)
	}
}

func TestClassifySDKStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, ErrorRateLimited},
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, ErrorFatal},
		{"openai 400 overflow", &openai.APIError{HTTPStatusCode: 400, Message: "maximum context length is 128000 tokens"}, ErrorContextExceeded},
		{"openai 400 other", &openai.APIError{HTTPStatusCode: 400, Message: "invalid request body"}, ErrorTransient},
		{"openai request error 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("service unavailable")}, ErrorTransient},
		{"anthropic 429", &anthropic.Error{StatusCode: 429}, ErrorRateLimited},
		{"wrapped api error", fmt.Errorf("invoke: %w", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}), ErrorRateLimited},
	}
	var c KeywordClassifier
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFailover(t *testing.T) {
	if !IsFailover(ErrorRateLimited) || !IsFailover(ErrorTransient) || !IsFailover(ErrorFatal) {
		t.Error("rate-limited, transient, and fatal should trip failover")
	}
	if IsFailover(ErrorContextExceeded) || IsFailover(ErrorNone) {
		t.Error("context-exceeded and none should not trip failover")
	}
}

func TestTypeOf(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorNone},
		{"rate limit", &RateLimitError{Endpoint: "openai/gpt-4o", Cause: base}, ErrorRateLimited},
		{"context", &ContextExceededError{Endpoint: "openai/gpt-4o", EstimatedTokens: 150000, MaxContext: 128000}, ErrorContextExceeded},
		{"fatal", &FatalError{Endpoint: "openai/gpt-4o", Cause: base}, ErrorFatal},
		{"transient", &TransientError{Endpoint: "openai/gpt-4o", Cause: base}, ErrorTransient},
		{"wrapped", fmt.Errorf("attempt failed: %w", &RateLimitError{Endpoint: "x/y", Cause: base}), ErrorRateLimited},
		{"plain", base, ErrorTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeOf(tt.err); got != tt.want {
				t.Errorf("TypeOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	wrapped := &RateLimitError{Endpoint: "openai/gpt-4o", Cause: cause}
	if !errors.Is(wrapped, cause) {
		t.Error("RateLimitError should unwrap to its cause")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrorRateLimited) || !Retryable(ErrorTransient) {
		t.Error("rate-limited and transient should be retryable")
	}
	if Retryable(ErrorFatal) || Retryable(ErrorContextExceeded) || Retryable(ErrorNone) {
		t.Error("fatal, context-exceeded, and none should not be retryable")
	}
}

func TestRouterUnknownProvider(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.Invoke(context.Background(), Request{Endpoint: "nosuch/model", Input: "hi"})
	if err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
	if got := TypeOf(err); got != ErrorFatal {
		t.Errorf("TypeOf = %v, want %v", got, ErrorFatal)
	}
	var nc ErrNotConfigured
	if !errors.As(err, &nc) {
		t.Error("expected ErrNotConfigured in chain")
	}
}
