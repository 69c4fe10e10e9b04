package checkpoint

import (
	"sync"
	"time"
)

// AutoCheckpoint throttles Manager.SaveCheckpoint to at most once per
// interval for a given operation, while still allowing an immediate,
// unthrottled write via ForceCheckpoint.
type AutoCheckpoint struct {
	manager  *Manager
	interval time.Duration

	mu       sync.Mutex
	lastSave map[string]time.Time
}

// NewAutoCheckpoint wraps manager with a per-operation save throttle.
func NewAutoCheckpoint(manager *Manager, interval time.Duration) *AutoCheckpoint {
	return &AutoCheckpoint{manager: manager, interval: interval, lastSave: make(map[string]time.Time)}
}

// MaybeCheckpoint saves a checkpoint only if at least interval has
// elapsed since the last save for this operation. Returns false (and no
// error) if the save was skipped due to throttling.
func (a *AutoCheckpoint) MaybeCheckpoint(operation string, state map[string]string, progress float64, metadata map[string]string) (Checkpoint, bool, error) {
	a.mu.Lock()
	last, ok := a.lastSave[operation]
	if ok && time.Since(last) < a.interval {
		a.mu.Unlock()
		return Checkpoint{}, false, nil
	}
	a.mu.Unlock()

	c, err := a.manager.SaveCheckpoint(operation, state, progress, metadata)
	if err != nil {
		return Checkpoint{}, false, err
	}

	a.mu.Lock()
	a.lastSave[operation] = time.Now()
	a.mu.Unlock()

	return c, true, nil
}

// ForceCheckpoint bypasses the throttle and always saves.
func (a *AutoCheckpoint) ForceCheckpoint(operation string, state map[string]string, progress float64, metadata map[string]string) (Checkpoint, error) {
	c, err := a.manager.SaveCheckpoint(operation, state, progress, metadata)
	if err != nil {
		return Checkpoint{}, err
	}
	a.mu.Lock()
	a.lastSave[operation] = time.Now()
	a.mu.Unlock()
	return c, nil
}
