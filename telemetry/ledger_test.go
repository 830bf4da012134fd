package telemetry

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerRecordAndSummary(t *testing.T) {
	l := openTestLedger(t)
	base := time.Now().Add(-time.Hour)

	l.Record(Event{
		CallID: "call-1", Time: base, Endpoint: "openai/gpt-4o-mini",
		Outcome: OutcomeSuccess, Attempts: 1, WasPrimary: true,
		InputTokens: 1000, OutputTokens: 200, CostUSD: 0.0005,
		Latency: 800 * time.Millisecond,
	})
	l.Record(Event{
		CallID: "call-2", Time: base.Add(time.Minute), Endpoint: "openai/gpt-4o-mini",
		Outcome: OutcomeSuccess, Attempts: 1, WasPrimary: true,
		InputTokens: 2000, OutputTokens: 400, CostUSD: 0.001,
		Latency: 1200 * time.Millisecond,
	})
	l.Record(Event{
		CallID: "call-3", Time: base.Add(2 * time.Minute), Endpoint: "anthropic/claude-sonnet-4",
		Outcome: OutcomeExhausted, ErrorType: "rate_limited", Attempts: 3,
		Waited: 12 * time.Second,
	})

	sums, err := l.Summary(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("Summary returned %d endpoints, want 2", len(sums))
	}

	// Sorted by endpoint, anthropic first.
	anth, oai := sums[0], sums[1]
	if anth.Endpoint != "anthropic/claude-sonnet-4" || oai.Endpoint != "openai/gpt-4o-mini" {
		t.Fatalf("summary order = %s, %s", anth.Endpoint, oai.Endpoint)
	}

	if anth.Calls != 1 || anth.Failures != 1 || anth.Successes != 0 {
		t.Errorf("anthropic summary = %+v", anth)
	}
	if oai.Calls != 2 || oai.Successes != 2 || oai.Failures != 0 {
		t.Errorf("openai summary = %+v", oai)
	}
	if oai.InputTokens != 3000 || oai.OutputTokens != 600 {
		t.Errorf("token totals = %d in, %d out", oai.InputTokens, oai.OutputTokens)
	}
	if oai.CostUSD < 0.00149 || oai.CostUSD > 0.00151 {
		t.Errorf("CostUSD = %v, want ~0.0015", oai.CostUSD)
	}
	if oai.AvgLatencyMS != 1000 {
		t.Errorf("AvgLatencyMS = %v, want 1000", oai.AvgLatencyMS)
	}
	// Failures contribute no latency samples.
	if anth.AvgLatencyMS != 0 || anth.P95LatencyMS != 0 {
		t.Errorf("failure-only latency = avg %v p95 %v, want zero", anth.AvgLatencyMS, anth.P95LatencyMS)
	}
}

func TestLedgerSummarySinceFilters(t *testing.T) {
	l := openTestLedger(t)
	now := time.Now()

	l.Record(Event{CallID: "old", Time: now.Add(-48 * time.Hour), Endpoint: "openai/gpt-4o", Outcome: OutcomeSuccess})
	l.Record(Event{CallID: "new", Time: now.Add(-time.Hour), Endpoint: "openai/gpt-4o", Outcome: OutcomeSuccess})

	sums, err := l.Summary(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sums) != 1 || sums[0].Calls != 1 {
		t.Fatalf("Summary = %+v, want only the recent call", sums)
	}
}

func TestLedgerPrune(t *testing.T) {
	l := openTestLedger(t)
	now := time.Now()

	l.Record(Event{CallID: "ancient", Time: now.Add(-72 * time.Hour), Endpoint: "openai/gpt-4o", Outcome: OutcomeSuccess})
	l.Record(Event{CallID: "stale", Time: now.Add(-48 * time.Hour), Endpoint: "openai/gpt-4o", Outcome: OutcomeSuccess})
	l.Record(Event{CallID: "fresh", Time: now, Endpoint: "openai/gpt-4o", Outcome: OutcomeSuccess})

	n, err := l.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("Prune removed %d events, want 2", n)
	}

	sums, err := l.Summary(time.Time{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sums) != 1 || sums[0].Calls != 1 {
		t.Errorf("after prune Summary = %+v, want one remaining call", sums)
	}

	// Nothing left to prune.
	n, err = l.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("second Prune: %v", err)
	}
	if n != 0 {
		t.Errorf("second Prune removed %d events, want 0", n)
	}
}

func TestPercentileMS(t *testing.T) {
	var samples []time.Duration
	for i := 1; i <= 100; i++ {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}

	if got := percentileMS(samples, 95); got != 96 {
		t.Errorf("p95 of 1..100ms = %v, want 96", got)
	}
	if got := percentileMS(samples, 50); got != 51 {
		t.Errorf("p50 of 1..100ms = %v, want 51", got)
	}
	if got := percentileMS(nil, 95); got != 0 {
		t.Errorf("p95 of nothing = %v, want 0", got)
	}
	if got := percentileMS([]time.Duration{42 * time.Millisecond}, 99); got != 42 {
		t.Errorf("p99 of single sample = %v, want 42", got)
	}
}

type captureSink struct {
	events []Event
}

func (c *captureSink) Record(ev Event) {
	c.events = append(c.events, ev)
}

func TestSinksFanOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	s := Sinks{a, Discard, b}

	s.Record(Event{CallID: "x", Outcome: OutcomeSuccess})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out delivered %d/%d events, want 1/1", len(a.events), len(b.events))
	}
	if a.events[0].CallID != "x" {
		t.Errorf("CallID = %q, want x", a.events[0].CallID)
	}
}
