package budget

import (
	"time"

	"github.com/switchyard-ai/switchyard/catalog"
	. "github.com/switchyard-ai/switchyard/internal/logging"
)

// cooldownDuration grows exponentially with consecutive failures:
// 30s, 1m, 2m, 4m, ... capped at 15m.
func cooldownDuration(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := cooldownBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= cooldownMax {
			return cooldownMax
		}
	}
	return d
}

// MarkFailure puts an endpoint in cooldown after a failover-worthy failure.
// Consecutive failures extend the cooldown exponentially. Returns the expiry
// time of the new cooldown.
func (t *Tracker) MarkFailure(id catalog.EndpointID, reason string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	c := t.cooldowns[id]
	if c == nil {
		c = &cooldown{}
		t.cooldowns[id] = c
	}
	c.failures++
	c.reason = reason
	c.until = now.Add(cooldownDuration(c.failures))

	L_info("budget: endpoint in cooldown", "endpoint", id,
		"failures", c.failures, "until", c.until.Format(time.TimeOnly), "reason", reason)
	return c.until
}

// ClearCooldown resets an endpoint's failure state after a success.
func (t *Tracker) ClearCooldown(id catalog.EndpointID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.cooldowns[id]; ok && c.failures > 0 {
		L_debug("budget: cooldown cleared", "endpoint", id, "failures", c.failures)
	}
	delete(t.cooldowns, id)
}

// CooldownRemaining returns how long an endpoint stays in cooldown, zero
// when it is usable. Expired cooldowns keep their failure count so a
// relapse extends the next cooldown; only success clears it.
func (t *Tracker) CooldownRemaining(id catalog.EndpointID) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cooldowns[id]
	if !ok {
		return 0
	}
	remaining := c.until.Sub(t.now())
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// CooldownReason returns the reason recorded with the latest failure.
func (t *Tracker) CooldownReason(id catalog.EndpointID) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.cooldowns[id]; ok {
		return c.reason
	}
	return ""
}
