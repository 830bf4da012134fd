package orchestrator

import (
	"fmt"
	"strings"

	"github.com/switchyard-ai/switchyard/catalog"
	"github.com/switchyard-ai/switchyard/llm"
)

// Attempt records one endpoint's part in a call.
type Attempt struct {
	Endpoint  catalog.EndpointID
	ErrorType llm.ErrorType
	Err       error
	// Retries is how many extra attempts ran on this endpoint after the
	// first one.
	Retries int
	// Skipped means no outward call was made: the input did not fit the
	// window, or the budget never admitted the call.
	Skipped bool
}

// ExhaustedError reports that the primary and every eligible fallback
// failed. Trail lists the endpoints in the order they were tried.
type ExhaustedError struct {
	Trail    []catalog.EndpointID
	Attempts []Attempt
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	names := make([]string, len(e.Trail))
	for i, id := range e.Trail {
		names[i] = string(id)
	}
	return fmt.Sprintf("all endpoints exhausted (tried %s): %v",
		strings.Join(names, ", "), e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// ContextTooLargeError reports an input no registry endpoint can hold.
type ContextTooLargeError struct {
	EstimatedTokens int
	LargestEndpoint catalog.EndpointID
	LargestContext  int
}

func (e *ContextTooLargeError) Error() string {
	return fmt.Sprintf("input of ~%d tokens exceeds every context window (largest is %s at %d)",
		e.EstimatedTokens, e.LargestEndpoint, e.LargestContext)
}
