// Package context provides the session-scoped state shared across
// evaluations: the requested output precision, the guard-digit margin, the
// hint suppression set, and first-occurrence tracking for mandatory hints.
// A global singleton mirrors how the surrounding shell serializes access:
// state is mutated only between top-level evaluations.
package context

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"unitcalc/pkg/calctypes"
)

// Default session settings. The guard margin is deliberately a tunable rather
// than a hard-coded figure; callers can change it per session.
const (
	DefaultOutputPrecision = 8
	DefaultGuardDigits     = 10
)

// CalcContext holds all session state for one calculator session.
type CalcContext struct {
	mu sync.RWMutex

	sessionID       string
	outputPrecision int
	guardDigits     int
	testMode        bool

	suppressed map[string]bool
	seen       map[string]bool
}

// New creates a fresh session context with default precision settings.
func New() *CalcContext {
	return &CalcContext{
		sessionID:       uuid.New().String(),
		outputPrecision: DefaultOutputPrecision,
		guardDigits:     DefaultGuardDigits,
		suppressed:      make(map[string]bool),
		seen:            make(map[string]bool),
	}
}

// SessionID returns the unique ID of this session, used in logs and
// first-occurrence hint tracking.
func (c *CalcContext) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// OutputPrecision returns the user-requested output precision in significant
// digits.
func (c *CalcContext) OutputPrecision() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outputPrecision
}

// SetOutputPrecision updates the requested output precision. The caller must
// not change precision while an evaluation is in flight.
func (c *CalcContext) SetOutputPrecision(digits int) error {
	if digits <= 0 {
		return &calctypes.InvalidPrecisionError{Requested: digits}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputPrecision = digits
	return nil
}

// GuardDigits returns the guard-digit margin added on top of the maximum
// input precision to form the working precision.
func (c *CalcContext) GuardDigits() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guardDigits
}

// SetGuardDigits updates the guard-digit margin.
func (c *CalcContext) SetGuardDigits(digits int) error {
	if digits < 0 {
		return &calctypes.InvalidPrecisionError{Requested: digits}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guardDigits = digits
	return nil
}

// IsSuppressed reports whether the user permanently dismissed hints with the
// given suppress key.
func (c *CalcContext) IsSuppressed(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.suppressed[key]
}

// Suppress adds a key to the suppression set.
func (c *CalcContext) Suppress(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressed[key] = true
}

// Unsuppress removes a key from the suppression set.
func (c *CalcContext) Unsuppress(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.suppressed, key)
}

// SuppressedKeys returns the suppression set in sorted order, for
// persistence.
func (c *CalcContext) SuppressedKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.suppressed))
	for k := range c.suppressed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadSuppressed seeds the suppression set from persisted state.
func (c *CalcContext) LoadSuppressed(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.suppressed[k] = true
	}
}

// MarkSeen records the first occurrence of a hint key in this session and
// reports whether this call was the first occurrence.
func (c *CalcContext) MarkSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return false
	}
	c.seen[key] = true
	return true
}

// SetTestMode toggles deterministic test mode.
func (c *CalcContext) SetTestMode(testMode bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMode = testMode
}

// IsTestMode reports whether the session runs in deterministic test mode.
func (c *CalcContext) IsTestMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.testMode
}

// Global context singleton, mirroring the one-session-per-process model.
var (
	globalContext   calctypes.Context = New()
	globalContextMu sync.RWMutex
)

// GetGlobalContext returns the global session context.
func GetGlobalContext() calctypes.Context {
	globalContextMu.RLock()
	defer globalContextMu.RUnlock()
	return globalContext
}

// SetGlobalContext replaces the global session context. Tests use this to
// install a fresh context.
func SetGlobalContext(ctx calctypes.Context) {
	globalContextMu.Lock()
	defer globalContextMu.Unlock()
	globalContext = ctx
}

// ResetGlobalContext installs a fresh context and returns it.
func ResetGlobalContext() calctypes.Context {
	ctx := New()
	SetGlobalContext(ctx)
	return ctx
}
