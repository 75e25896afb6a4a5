package guard

import (
	"sync"
	"time"
)

// inFlightTimeout releases an in-flight flag whose Done was never called.
const inFlightTimeout = 10 * time.Second

type redirectState struct {
	lastRedirectAt time.Time
	inFlight       bool
}

// Cooldown suppresses repeated redirects for the same key within a window,
// so a redirect target that is itself denied cannot start a loop. It is safe
// for concurrent use.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	states map[string]redirectState
}

// NewCooldown constructs a Cooldown with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, now: time.Now, states: make(map[string]redirectState)}
}

// Begin reports whether a redirect for key may be issued now and, if so,
// marks it in flight.
func (c *Cooldown) Begin(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if st, ok := c.states[key]; ok {
		elapsed := now.Sub(st.lastRedirectAt)
		if elapsed < c.window || (st.inFlight && elapsed < inFlightTimeout) {
			return false
		}
	}
	c.states[key] = redirectState{lastRedirectAt: now, inFlight: true}
	if len(c.states) > 1024 {
		c.pruneLocked(now)
	}
	return true
}

// Done clears the in-flight flag of key; the window still applies.
func (c *Cooldown) Done(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[key]; ok {
		st.inFlight = false
		c.states[key] = st
	}
}

func (c *Cooldown) pruneLocked(now time.Time) {
	for key, st := range c.states {
		elapsed := now.Sub(st.lastRedirectAt)
		if elapsed >= c.window && (!st.inFlight || elapsed >= inFlightTimeout) {
			delete(c.states, key)
		}
	}
}
