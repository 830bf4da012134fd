// Package telemetry carries per-call outcome events to pluggable sinks: the
// structured log, a sqlite usage ledger, or both.
package telemetry

import (
	"time"

	"github.com/switchyard-ai/switchyard/catalog"

	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// Outcome is the terminal state of one logical call.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeTooLarge  Outcome = "too_large"
	OutcomeCancelled Outcome = "cancelled"
)

// Event records how one logical call ended. Endpoint is the endpoint that
// answered, or the last one tried when nothing did.
type Event struct {
	CallID       string
	Time         time.Time
	Endpoint     catalog.EndpointID
	Outcome      Outcome
	ErrorType    string
	Attempts     int
	WasPrimary   bool
	FailedOver   bool
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Latency      time.Duration
	Waited       time.Duration
}

// Sink receives call outcome events. Implementations must not block the
// caller on telemetry trouble; recording is fire-and-forget.
type Sink interface {
	Record(Event)
}

// Sinks fans one event out to several sinks in order.
type Sinks []Sink

func (s Sinks) Record(ev Event) {
	for _, sink := range s {
		sink.Record(ev)
	}
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Event) {}

// LogSink writes events to the structured log.
type LogSink struct{}

func (LogSink) Record(ev Event) {
	switch ev.Outcome {
	case OutcomeSuccess:
		L_info("call succeeded",
			"callID", ev.CallID,
			"endpoint", ev.Endpoint,
			"attempts", ev.Attempts,
			"failedOver", ev.FailedOver,
			"inputTokens", ev.InputTokens,
			"outputTokens", ev.OutputTokens,
			"costUSD", ev.CostUSD,
			"latency", ev.Latency,
			"waited", ev.Waited)
	case OutcomeCancelled:
		L_debug("call cancelled",
			"callID", ev.CallID,
			"endpoint", ev.Endpoint,
			"attempts", ev.Attempts,
			"waited", ev.Waited)
	default:
		L_warn("call failed",
			"callID", ev.CallID,
			"endpoint", ev.Endpoint,
			"outcome", ev.Outcome,
			"errorType", ev.ErrorType,
			"attempts", ev.Attempts,
			"waited", ev.Waited)
	}
}
