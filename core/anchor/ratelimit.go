package anchor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Window captures a user's rate-limit counters. All times are unix seconds.
type Window struct {
	WindowStart uint64
	Count       uint64
	LastAnchor  uint64
	// HasAnchored distinguishes "never anchored" from LastAnchor == 0.
	HasAnchored bool
}

// CheckWindow verifies that n more anchors at now fit the limits. The returned
// Window reflects the updated counters when allowed; on denial prev is
// returned unchanged. exists is false for a user seen for the first time.
func CheckWindow(l Limits, prev Window, exists bool, now uint64, n uint64) (Window, error) {
	l = l.withDefaults()
	if n == 0 {
		return prev, fmt.Errorf("%w: empty anchor set", ErrInvalidInput)
	}
	next := prev
	if !exists || elapsed(now, prev.WindowStart) >= l.windowSeconds() {
		next.WindowStart = now
		next.Count = 0
	}
	if next.Count+n > l.MaxPerWindow || next.Count+n < next.Count {
		return prev, ErrRateLimitExceeded
	}
	// A window reset does not relax the cooldown: LastAnchor survives it.
	if next.HasAnchored && elapsed(now, next.LastAnchor) < l.minDelaySeconds() {
		return prev, ErrTooSoon
	}
	next.Count += n
	next.LastAnchor = now
	next.HasAnchored = true
	return next, nil
}

// Remaining is MaxPerWindow minus the count of the current window as of now.
// A stale or missing window reports the full quota.
func (w Window) Remaining(l Limits, exists bool, now uint64) uint64 {
	l = l.withDefaults()
	if !exists || elapsed(now, w.WindowStart) >= l.windowSeconds() {
		return l.MaxPerWindow
	}
	if w.Count >= l.MaxPerWindow {
		return 0
	}
	return l.MaxPerWindow - w.Count
}

// NextAnchorTime is LastAnchor + MinDelay, or 0 for a user that never anchored.
func (w Window) NextAnchorTime(l Limits) uint64 {
	l = l.withDefaults()
	if !w.HasAnchored {
		return 0
	}
	return w.LastAnchor + l.minDelaySeconds()
}

func elapsed(now, since uint64) uint64 {
	if now < since {
		return 0
	}
	return now - since
}

// RateLimiter persists Windows per user.
type RateLimiter struct {
	state  State
	limits Limits
}

func NewRateLimiter(state State, limits Limits) *RateLimiter {
	return &RateLimiter{state: state, limits: limits.withDefaults()}
}

// Load returns the stored window and whether one exists.
func (r *RateLimiter) Load(user common.Address) (Window, bool, error) {
	if r == nil || r.state == nil {
		return Window{}, false, fmt.Errorf("rate limiter not initialised")
	}
	var w Window
	ok, err := r.state.KVGet(windowKey(user), &w)
	if err != nil {
		return Window{}, false, fmt.Errorf("ratelimit: load window: %w", err)
	}
	return w, ok, nil
}

// CheckAndRecord admits a single anchor.
func (r *RateLimiter) CheckAndRecord(user common.Address, now uint64) error {
	return r.CheckAndRecordN(user, now, 1)
}

// CheckAndRecordN admits n anchors sharing one timestamp.
func (r *RateLimiter) CheckAndRecordN(user common.Address, now uint64, n uint64) error {
	prev, exists, err := r.Load(user)
	if err != nil {
		return err
	}
	next, err := CheckWindow(r.limits, prev, exists, now, n)
	if err != nil {
		return err
	}
	if err := r.state.KVPut(windowKey(user), next); err != nil {
		return fmt.Errorf("ratelimit: persist window: %w", err)
	}
	return nil
}

// Remaining reports the quota left in the current window without mutating.
func (r *RateLimiter) Remaining(user common.Address, now uint64) (uint64, error) {
	w, exists, err := r.Load(user)
	if err != nil {
		return 0, err
	}
	return w.Remaining(r.limits, exists, now), nil
}

// NextAnchorTime reports the earliest unix time the cooldown allows.
func (r *RateLimiter) NextAnchorTime(user common.Address) (uint64, error) {
	w, _, err := r.Load(user)
	if err != nil {
		return 0, err
	}
	return w.NextAnchorTime(r.limits), nil
}
