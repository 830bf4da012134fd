package telemetry

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"github.com/switchyard-ai/switchyard/catalog"
	. "github.com/switchyard-ai/switchyard/internal/logging"
	"github.com/switchyard-ai/switchyard/internal/paths"
)

// dbOpenOptions enables WAL for concurrent readers and a busy timeout so
// writers queue instead of erroring.
const dbOpenOptions = "?_journal_mode=WAL&_busy_timeout=5000"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS usage_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id       TEXT NOT NULL,
	ts            INTEGER NOT NULL,
	endpoint      TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	error_type    TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	was_primary   INTEGER NOT NULL DEFAULT 1,
	failed_over   INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	waited_ms     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_usage_events_ts ON usage_events(ts);
CREATE INDEX IF NOT EXISTS idx_usage_events_endpoint ON usage_events(endpoint);
`

// Ledger is a sqlite-backed Sink. Recording degrades rather than fails:
// ledger trouble is logged and never surfaces to the call path.
type Ledger struct {
	db   *sql.DB
	cron *cron.Cron
	now  func() time.Time
}

var _ Sink = (*Ledger)(nil)

// Open opens or creates the usage ledger at path.
func Open(path string) (*Ledger, error) {
	if err := paths.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+dbOpenOptions)
	if err != nil {
		return nil, fmt.Errorf("open usage ledger: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize usage ledger schema: %w", err)
	}
	L_debug("telemetry: usage ledger open", "path", path)
	return &Ledger{db: db, now: time.Now}, nil
}

// Record inserts one event. Errors are logged and dropped.
func (l *Ledger) Record(ev Event) {
	if l == nil || l.db == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = l.now()
	}
	_, err := l.db.Exec(`INSERT INTO usage_events
		(call_id, ts, endpoint, outcome, error_type, attempts, was_primary, failed_over,
		 input_tokens, output_tokens, cost_usd, latency_ms, waited_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.CallID, ev.Time.Unix(), string(ev.Endpoint), string(ev.Outcome), ev.ErrorType,
		ev.Attempts, ev.WasPrimary, ev.FailedOver,
		ev.InputTokens, ev.OutputTokens, ev.CostUSD,
		ev.Latency.Milliseconds(), ev.Waited.Milliseconds())
	if err != nil {
		L_warn("telemetry: failed to record usage event", "callID", ev.CallID, "error", err)
	}
}

// EndpointSummary aggregates ledger rows for one endpoint. Latency figures
// cover answered calls only.
type EndpointSummary struct {
	Endpoint     catalog.EndpointID
	Calls        int
	Successes    int
	Failures     int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	AvgLatencyMS float64
	P95LatencyMS float64
}

// Summary aggregates events recorded at or after since, one row per
// endpoint, ordered by endpoint.
func (l *Ledger) Summary(since time.Time) ([]EndpointSummary, error) {
	rows, err := l.db.Query(`SELECT endpoint, outcome, input_tokens, output_tokens, cost_usd, latency_ms
		FROM usage_events WHERE ts >= ?`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query usage events: %w", err)
	}
	defer rows.Close()

	type agg struct {
		sum       EndpointSummary
		latencies []time.Duration
	}
	byEndpoint := map[catalog.EndpointID]*agg{}

	for rows.Next() {
		var (
			endpoint  string
			outcome   string
			inTokens  int64
			outTokens int64
			cost      float64
			latencyMS int64
		)
		if err := rows.Scan(&endpoint, &outcome, &inTokens, &outTokens, &cost, &latencyMS); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		id := catalog.EndpointID(endpoint)
		a := byEndpoint[id]
		if a == nil {
			a = &agg{sum: EndpointSummary{Endpoint: id}}
			byEndpoint[id] = a
		}
		a.sum.Calls++
		if Outcome(outcome) == OutcomeSuccess {
			a.sum.Successes++
			a.latencies = append(a.latencies, time.Duration(latencyMS)*time.Millisecond)
		} else {
			a.sum.Failures++
		}
		a.sum.InputTokens += inTokens
		a.sum.OutputTokens += outTokens
		a.sum.CostUSD += cost
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage events: %w", err)
	}

	out := make([]EndpointSummary, 0, len(byEndpoint))
	for _, a := range byEndpoint {
		a.sum.AvgLatencyMS = meanMS(a.latencies)
		a.sum.P95LatencyMS = percentileMS(a.latencies, 95)
		out = append(out, a.sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

// Prune deletes events older than maxAge and returns how many went.
func (l *Ledger) Prune(maxAge time.Duration) (int64, error) {
	cutoff := l.now().Add(-maxAge).Unix()
	res, err := l.db.Exec(`DELETE FROM usage_events WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune usage events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartMaintenance schedules Prune(maxAge) on a cron spec (five fields or a
// descriptor like @daily). Runs until Close.
func (l *Ledger) StartMaintenance(spec string, maxAge time.Duration) error {
	if l.cron != nil {
		return errors.New("ledger maintenance already started")
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := l.Prune(maxAge)
		if err != nil {
			L_warn("telemetry: scheduled prune failed", "error", err)
			return
		}
		if n > 0 {
			L_info("telemetry: pruned usage events", "events", n, "olderThan", maxAge)
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance schedule %q: %w", spec, err)
	}
	c.Start()
	l.cron = c
	L_debug("telemetry: ledger maintenance scheduled", "spec", spec, "maxAge", maxAge)
	return nil
}

// Close stops maintenance and closes the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	if l.cron != nil {
		l.cron.Stop()
		l.cron = nil
	}
	return l.db.Close()
}

// meanMS returns the mean of samples in milliseconds.
func meanMS(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return float64(total.Milliseconds()) / float64(len(samples))
}

// percentileMS returns the pth percentile of samples in milliseconds.
func percentileMS(samples []time.Duration, p int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) * p) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx].Milliseconds())
}
