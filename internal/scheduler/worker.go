// TaskManager owns the live, per-site orchestrator.Control handles and an
// escalating cooldown policy (1h -> 4h -> 12h on repeated trouble, reset
// after a clean run), supervising concurrent per-site orchestrator.Run calls.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"real-estate-portal/internal/orchestrator"
	"real-estate-portal/internal/parser"

	"gorm.io/gorm"
)

// cooldownSchedule is the escalating cooldown applied after consecutive
// circuit-breaker trips or maintenance aborts for the same source site.
var cooldownSchedule = []time.Duration{time.Hour, 4 * time.Hour, 12 * time.Hour}

// siteState tracks one source site's live run and trouble history.
type siteState struct {
	control          *orchestrator.Control
	running          bool
	consecutiveTrips int
	consecutiveOK    int
	cooldownUntil    time.Time
}

// TaskManager supervises one orchestrator task per source site at a time,
// exposing pause/resume/cancel against whichever task is currently running
// and applying a cooldown, escalating on consecutive trips, after each
// circuit-breaker trip or maintenance abort.
type TaskManager struct {
	db   *gorm.DB
	orch *orchestrator.Orchestrator

	mu     sync.Mutex
	states map[string]*siteState
}

// NewTaskManager constructs a TaskManager bound to orch.
func NewTaskManager(db *gorm.DB, orch *orchestrator.Orchestrator) *TaskManager {
	return &TaskManager{db: db, orch: orch, states: make(map[string]*siteState)}
}

// ErrInCooldown is returned by Start when the site is still serving out a
// cooldown from a prior trip.
var ErrInCooldown = errors.New("scheduler: site is in cooldown")

// ErrAlreadyRunning is returned by Start when the site already has a task
// in flight.
var ErrAlreadyRunning = errors.New("scheduler: site already has a task running")

func (m *TaskManager) stateFor(site string) *siteState {
	st, ok := m.states[site]
	if !ok {
		st = &siteState{}
		m.states[site] = st
	}
	return st
}

// Start launches one orchestrator task for p against area, blocking until it
// completes. Call it from its own goroutine for concurrent per-site
// scheduling. Scheduler.RunAllSites does not go through Start; it runs its
// per-site tasks in goroutines of its own.
func (m *TaskManager) Start(ctx context.Context, p parser.Parser, area string) error {
	site := p.SourceSite()

	m.mu.Lock()
	st := m.stateFor(site)
	if st.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	if time.Now().Before(st.cooldownUntil) {
		remaining := time.Until(st.cooldownUntil)
		m.mu.Unlock()
		return fmt.Errorf("%w: %s for %v more", ErrInCooldown, site, remaining.Round(time.Second))
	}
	st.control = orchestrator.NewControl()
	st.running = true
	m.mu.Unlock()

	task := orchestrator.Task{
		ID:         fmt.Sprintf("%s-%s-%d", site, area, time.Now().UnixNano()),
		SourceSite: site,
		Parser:     p,
		AreaCode:   area,
		Control:    st.control,
	}

	_, err := m.orch.Run(ctx, task)

	m.mu.Lock()
	st.running = false
	switch {
	case err == nil:
		st.consecutiveTrips = 0
		st.consecutiveOK++
	case errors.Is(err, orchestrator.ErrCircuitBreakerTripped), errors.Is(err, orchestrator.ErrMaintenance):
		st.consecutiveOK = 0
		idx := st.consecutiveTrips
		if idx >= len(cooldownSchedule) {
			idx = len(cooldownSchedule) - 1
		}
		cooldown := cooldownSchedule[idx]
		st.cooldownUntil = time.Now().Add(cooldown)
		st.consecutiveTrips++
		log.Printf("TaskManager: %s entering %v cooldown after %v (trip #%d)", site, cooldown, err, st.consecutiveTrips)
	case errors.Is(err, orchestrator.ErrTaskCancelled):
		// Cancellation is an operator decision, not trouble; no cooldown.
	default:
		// Soft error already logged by the orchestrator itself.
	}
	m.mu.Unlock()

	return err
}

// Pause requests the currently running task for site suspend at its next
// suspension point. No-op if nothing is running for that site.
func (m *TaskManager) Pause(site string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[site]; ok && st.control != nil {
		st.control.Pause()
	}
}

// Resume clears a pause request for site.
func (m *TaskManager) Resume(site string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[site]; ok && st.control != nil {
		st.control.Resume()
	}
}

// Cancel requests the currently running task for site unwind.
func (m *TaskManager) Cancel(site string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[site]; ok && st.control != nil {
		st.control.Cancel()
	}
}

// Status reports per-site supervision state for an operator surface.
type Status struct {
	Running          bool      `json:"running"`
	ConsecutiveTrips int       `json:"consecutive_trips"`
	ConsecutiveOK    int       `json:"consecutive_ok"`
	CooldownUntil    time.Time `json:"cooldown_until,omitempty"`
}

// Status returns the current supervision state for every site seen so far.
func (m *TaskManager) Status() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.states))
	for site, st := range m.states {
		out[site] = Status{
			Running:          st.running,
			ConsecutiveTrips: st.consecutiveTrips,
			ConsecutiveOK:    st.consecutiveOK,
			CooldownUntil:    st.cooldownUntil,
		}
	}
	return out
}
