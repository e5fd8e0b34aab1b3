package keys

import (
	"sort"
	"time"
)

// DefaultHoldTimeout covers the initial auto-repeat delay of most terminals
// and keyboards (250-500ms) with some margin.
const DefaultHoldTimeout = 600 * time.Millisecond

// HoldTracker turns a stream of key presses without releases (terminal input
// only reports presses and auto-repeats) into press/release pairs: a key is
// considered released when no repeat arrived within the hold timeout.
type HoldTracker struct {
	timeout  time.Duration
	lastSeen map[rune]time.Time
}

// NewHoldTracker returns a tracker; a non-positive timeout uses
// DefaultHoldTimeout.
func NewHoldTracker(timeout time.Duration) *HoldTracker {
	if timeout <= 0 {
		timeout = DefaultHoldTimeout
	}
	return &HoldTracker{
		timeout:  timeout,
		lastSeen: make(map[rune]time.Time),
	}
}

// Timeout returns the configured hold timeout.
func (h *HoldTracker) Timeout() time.Duration {
	return h.timeout
}

// Touch records a press or repeat of r at now. It returns true when this is
// the start of a new hold.
func (h *HoldTracker) Touch(r rune, now time.Time) bool {
	_, held := h.lastSeen[r]
	h.lastSeen[r] = now
	return !held
}

// Expired removes and returns, in ascending order, every key whose last
// press is older than the timeout.
func (h *HoldTracker) Expired(now time.Time) []rune {
	var out []rune
	for r, at := range h.lastSeen {
		if now.Sub(at) > h.timeout {
			out = append(out, r)
			delete(h.lastSeen, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Forget drops r without reporting it, e.g. after an explicit release.
func (h *HoldTracker) Forget(r rune) {
	delete(h.lastSeen, r)
}

// Reset drops every tracked key.
func (h *HoldTracker) Reset() {
	clear(h.lastSeen)
}
