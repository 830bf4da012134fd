// Package budget implements sliding-window admission control over endpoint
// quotas. One Tracker is shared by every concurrent logical call; it is the
// only mutable shared state in the system, and a single mutex serializes
// every check-and-update.
package budget

import (
	"sync"
	"time"

	"github.com/switchyard-ai/switchyard/catalog"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour

	cooldownBase = 30 * time.Second
	cooldownMax  = 15 * time.Minute
)

// QuotaSource is the registry lookup the tracker needs.
type QuotaSource interface {
	QuotaOf(catalog.EndpointID) catalog.QuotaConfig
}

// Denial names the quota dimension that blocked admission.
type Denial string

const (
	DenialNone              Denial = ""
	DenialRequestsPerMinute Denial = "requests_per_minute"
	DenialTokensPerMinute   Denial = "tokens_per_minute"
	DenialRequestsPerDay    Denial = "requests_per_day"
)

// Snapshot is the derived view of one endpoint's trailing usage.
type Snapshot struct {
	RequestsThisMinute int
	TokensThisMinute   int
	RequestsToday      int
}

// entry is one recorded outward call.
type entry struct {
	at     time.Time
	tokens int
}

// window holds the trailing usage entries for one endpoint, oldest first.
// Entries are appended on record and pruned lazily on every locked access.
type window struct {
	entries []entry
}

// cooldown tracks repeated rate-limit failures on one endpoint.
type cooldown struct {
	until    time.Time
	failures int
	reason   string
}

// Tracker is the shared budget state. Construct with NewTracker.
type Tracker struct {
	mu        sync.Mutex
	quotas    QuotaSource
	usage     map[catalog.EndpointID]*window
	cooldowns map[catalog.EndpointID]*cooldown
	lastCall  time.Time
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source. Tests use this to roll windows
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker that enforces the quotas the source reports.
func NewTracker(quotas QuotaSource, opts ...Option) *Tracker {
	t := &Tracker{
		quotas:    quotas,
		usage:     make(map[catalog.EndpointID]*window),
		cooldowns: make(map[catalog.EndpointID]*cooldown),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// prune drops entries that left the day window. Entries are appended in
// time order, so pruning is a prefix cut.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-dayWindow)
	i := 0
	for i < len(w.entries) && w.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = append(w.entries[:0], w.entries[i:]...)
	}
}

// snapshot derives the trailing counters. Callers must have pruned first.
func (w *window) snapshot(now time.Time) Snapshot {
	minCutoff := now.Add(-minuteWindow)
	var s Snapshot
	for _, e := range w.entries {
		s.RequestsToday++
		if !e.at.Before(minCutoff) {
			s.RequestsThisMinute++
			s.TokensThisMinute += e.tokens
		}
	}
	return s
}

// oldestInMinute returns the timestamp of the oldest entry still inside the
// trailing minute, ok=false when none exists.
func (w *window) oldestInMinute(now time.Time) (time.Time, bool) {
	minCutoff := now.Add(-minuteWindow)
	for _, e := range w.entries {
		if !e.at.Before(minCutoff) {
			return e.at, true
		}
	}
	return time.Time{}, false
}

// check evaluates admission under the lock. wait is the time until the
// oldest in-window increment of each over-budget dimension expires, max
// across dimensions; a dimension that is over budget with nothing to expire
// reports its full window so callers re-check instead of spinning.
func (t *Tracker) check(id catalog.EndpointID, estimatedTokens int, now time.Time) (Denial, time.Duration) {
	q := t.quotas.QuotaOf(id)
	w := t.usage[id]

	var s Snapshot
	if w != nil {
		w.prune(now)
		s = w.snapshot(now)
	}

	denial := DenialNone
	var wait time.Duration

	over := func(d Denial, dimWait time.Duration) {
		if denial == DenialNone {
			denial = d
		}
		if dimWait > wait {
			wait = dimWait
		}
	}

	if catalog.Limited(q.RequestsPerMinute) && s.RequestsThisMinute+1 > q.RequestsPerMinute {
		over(DenialRequestsPerMinute, t.minuteExpiry(w, now))
	}
	if catalog.Limited(q.TokensPerMinute) && s.TokensThisMinute+estimatedTokens > q.TokensPerMinute {
		over(DenialTokensPerMinute, t.minuteExpiry(w, now))
	}
	if catalog.Limited(q.RequestsPerDay) && s.RequestsToday+1 > q.RequestsPerDay {
		dimWait := dayWindow
		if w != nil && len(w.entries) > 0 {
			dimWait = w.entries[0].at.Add(dayWindow).Sub(now)
		}
		over(DenialRequestsPerDay, dimWait)
	}

	return denial, wait
}

func (t *Tracker) minuteExpiry(w *window, now time.Time) time.Duration {
	if w != nil {
		if oldest, ok := w.oldestInMinute(now); ok {
			return oldest.Add(minuteWindow).Sub(now)
		}
	}
	return minuteWindow
}

// record appends a usage entry and advances the global last-call timestamp.
func (t *Tracker) record(id catalog.EndpointID, tokens int, now time.Time) {
	w := t.usage[id]
	if w == nil {
		w = &window{}
		t.usage[id] = w
	}
	w.entries = append(w.entries, entry{at: now, tokens: tokens})
	t.lastCall = now
}

// CanProceed reports whether admitting a call with the given estimated token
// cost would keep every quota dimension within budget. Unlimited dimensions
// always pass.
func (t *Tracker) CanProceed(id catalog.EndpointID, estimatedTokens int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	denial, _ := t.check(id, estimatedTokens, t.now())
	return denial == DenialNone
}

// WaitTime returns how long until CanProceed could become true, zero when
// the call is admissible now.
func (t *Tracker) WaitTime(id catalog.EndpointID, estimatedTokens int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, wait := t.check(id, estimatedTokens, t.now())
	return wait
}

// Check combines CanProceed and WaitTime in one locked evaluation and names
// the dimension that denied admission.
func (t *Tracker) Check(id catalog.EndpointID, estimatedTokens int) (ok bool, denial Denial, wait time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	denial, wait = t.check(id, estimatedTokens, t.now())
	return denial == DenialNone, denial, wait
}

// Acquire checks admission and, when admitted, records the usage in the same
// locked section. Two concurrent callers can never both observe "under
// budget" and jointly exceed it.
func (t *Tracker) Acquire(id catalog.EndpointID, estimatedTokens int) (ok bool, denial Denial, wait time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	denial, wait = t.check(id, estimatedTokens, now)
	if denial != DenialNone {
		return false, denial, wait
	}
	t.record(id, estimatedTokens, now)
	return true, DenialNone, 0
}

// RecordUsage appends a timestamped usage entry for an outward call. Called
// exactly once per actual call, at attempt time, so failed attempts still
// count against request budgets.
func (t *Tracker) RecordUsage(id catalog.EndpointID, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(id, tokens, t.now())
}

// Usage returns the trailing counters for one endpoint.
func (t *Tracker) Usage(id catalog.EndpointID) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.usage[id]
	if w == nil {
		return Snapshot{}
	}
	now := t.now()
	w.prune(now)
	return w.snapshot(now)
}

// LastGlobalCall returns the timestamp of the most recent call across all
// endpoints, the zero time before any call.
func (t *Tracker) LastGlobalCall() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCall
}

// SetLastGlobalCall overrides the global last-call timestamp.
func (t *Tracker) SetLastGlobalCall(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCall = ts
}

// SinceLastGlobalCall returns the elapsed time since any endpoint was
// called. Before the first call it reports the full day window, which every
// inter-call floor treats as satisfied.
func (t *Tracker) SinceLastGlobalCall() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastCall.IsZero() {
		return dayWindow
	}
	return t.now().Sub(t.lastCall)
}
