// Package hints implements the advisory side-channel threaded through
// evaluation and solving. Hints accumulate without ever interrupting a
// computation; the collector deduplicates them by suppress key and filters
// them against the user's persisted suppression set on the way out.
package hints

import (
	"unitcalc/pkg/calctypes"
)

// Collector accumulates hints for a single evaluation or solve call. It is
// not safe for concurrent use; one collector belongs to one in-flight call.
type Collector struct {
	ctx   calctypes.Context
	hints []calctypes.Hint
	keys  map[string]bool
}

// NewCollector creates a collector bound to the session context that owns
// the suppression set and first-occurrence tracking.
func NewCollector(ctx calctypes.Context) *Collector {
	return &Collector{
		ctx:  ctx,
		keys: make(map[string]bool),
	}
}

// Add records a hint unless an equal suppress key was already recorded in
// this call.
func (c *Collector) Add(h calctypes.Hint) {
	if h.SuppressKey != "" {
		if c.keys[h.SuppressKey] {
			return
		}
		c.keys[h.SuppressKey] = true
	}
	c.hints = append(c.hints, h)
}

// AddSuppressible records a plain suppressible hint.
func (c *Collector) AddSuppressible(kind calctypes.HintKind, key, message string) {
	c.Add(calctypes.Hint{
		Kind:         kind,
		Message:      message,
		SuppressKey:  key,
		Suppressible: true,
	})
}

// AddMandatoryOnce records a hint that must be shown on its first occurrence
// in the session regardless of the suppression set; later occurrences are
// ordinary suppressible hints.
func (c *Collector) AddMandatoryOnce(kind calctypes.HintKind, key, message string) {
	first := c.ctx.MarkSeen(key)
	c.Add(calctypes.Hint{
		Kind:         kind,
		Message:      message,
		SuppressKey:  key,
		Suppressible: !first,
	})
}

// Hints returns the collected hints with suppressed entries filtered out.
// Non-suppressible hints always pass the filter.
func (c *Collector) Hints() []calctypes.Hint {
	out := make([]calctypes.Hint, 0, len(c.hints))
	for _, h := range c.hints {
		if h.Suppressible && c.ctx.IsSuppressed(h.SuppressKey) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// Merge appends every hint from other into this collector, keeping the
// dedupe-by-key behavior.
func (c *Collector) Merge(other []calctypes.Hint) {
	for _, h := range other {
		c.Add(h)
	}
}
