package orchestrator

import "sync/atomic"

// Control is the pause/cancel signaling pair a caller hands the orchestrator
// per run. Both flags are plain polled state: the run checks them at its
// suspension points rather than being interrupted.
type Control struct {
	paused    atomic.Bool
	cancelled atomic.Bool
}

// NewControl returns a fresh, unpaused, uncancelled Control.
func NewControl() *Control { return &Control{} }

// Pause requests the running task suspend at its next suspension point.
func (c *Control) Pause() { c.paused.Store(true) }

// Resume clears a pause request.
func (c *Control) Resume() { c.paused.Store(false) }

// Cancel requests the running task unwind at its next suspension point.
func (c *Control) Cancel() { c.cancelled.Store(true) }

func (c *Control) IsPaused() bool    { return c.paused.Load() }
func (c *Control) IsCancelled() bool { return c.cancelled.Load() }
