package anchor

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Guard is the pausable, single-owner switch in front of every write path.
// Reads never consult it.
type Guard struct {
	mu     sync.RWMutex
	owner  common.Address
	paused bool
}

func NewGuard(owner common.Address) *Guard {
	return &Guard{owner: owner}
}

// Owner returns the only address allowed to toggle the pause flag.
func (g *Guard) Owner() common.Address {
	return g.owner
}

// Paused reports the current flag.
func (g *Guard) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// Pause halts anchoring. Pausing an already paused guard fails with
// ErrEnforcedPause.
func (g *Guard) Pause(caller common.Address) error {
	if caller != g.owner || g.owner == (common.Address{}) {
		return ErrUnauthorized
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return ErrEnforcedPause
	}
	g.paused = true
	return nil
}

// Unpause resumes anchoring. Unpausing a running guard fails with
// ErrExpectedPause.
func (g *Guard) Unpause(caller common.Address) error {
	if caller != g.owner || g.owner == (common.Address{}) {
		return ErrUnauthorized
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return ErrExpectedPause
	}
	g.paused = false
	return nil
}

func (g *Guard) set(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.mu.Unlock()
}

// RequireNotPaused mirrors the guard check used by every mutating call.
func (g *Guard) RequireNotPaused() error {
	if g == nil {
		return nil
	}
	if g.Paused() {
		return ErrEnforcedPause
	}
	return nil
}
