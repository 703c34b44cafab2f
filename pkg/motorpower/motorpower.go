// Package motorpower implements the per-motor power state machine:
// OFF/IDLE/STOPPED/RUNNING, governed by a configurable power-mode policy
// and driven forward by a periodic idle-timer callback, the same shape
// as the teacher's idle_timeout/stepper_enable pair but scoped to one
// motor at a time instead of one printer-wide state.
package motorpower

import (
	"sync"
	"time"

	"cncmotion/pkg/log"
)

// State is a motor's current power state.
type State int

const (
	StateOff State = iota
	StateIdle
	StateStopped
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateIdle:
		return "IDLE"
	case StateStopped:
		return "STOPPED"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Policy selects how a motor's power state reacts to motion starting,
// stopping, and going idle.
type Policy string

const (
	// PolicyEnergizedDuringCycle: RUNNING during any active block,
	// transitions to OFF the instant the cycle ends.
	PolicyEnergizedDuringCycle Policy = "energized-during-cycle"
	// PolicyIdleWhenStopped: RUNNING during movement, drops to IDLE after
	// IdleTimeout seconds of no motion rather than cutting power outright.
	PolicyIdleWhenStopped Policy = "idle-when-stopped"
	// PolicyPowerReducedWhenIdle and PolicyDynamic are reserved: accepted
	// as configuration values but currently behave like
	// PolicyIdleWhenStopped, since neither the data model nor the
	// hardware layer this core targets exposes a reduced-current drive
	// mode to switch to.
	PolicyPowerReducedWhenIdle Policy = "power-reduced-when-idle"
	PolicyDynamic              Policy = "dynamic"
)

// IdleTimeoutMin and IdleTimeoutMax bound each motor's idle timeout; a
// configured timeout outside this range is clamped rather than rejected.
const (
	IdleTimeoutMin = 1.0   // seconds
	IdleTimeoutMax = 3600.0 // seconds
)

// Motor tracks one motor's power state and idle countdown.
type Motor struct {
	Name        string
	Policy      Policy
	IdleTimeout float64 // seconds, clamped to [IdleTimeoutMin, IdleTimeoutMax]

	state       State
	idleElapsed float64 // seconds since the last motion on this motor
}

// NewMotor returns a motor in the OFF state under the given policy.
func NewMotor(name string, policy Policy, idleTimeout float64) *Motor {
	if idleTimeout < IdleTimeoutMin {
		idleTimeout = IdleTimeoutMin
	}
	if idleTimeout > IdleTimeoutMax {
		idleTimeout = IdleTimeoutMax
	}
	return &Motor{Name: name, Policy: policy, IdleTimeout: idleTimeout, state: StateOff}
}

// State returns the motor's current power state.
func (m *Motor) State() State { return m.state }

// Manager owns every configured motor's power state machine and the
// periodic callback that decrements idle timers, mirroring the
// teacher's single printer-wide idle_timeout loop but fanned out
// per-motor so mixed policies (e.g. spindle energized-during-cycle,
// axis motors idle-when-stopped) coexist.
type Manager struct {
	mu      sync.Mutex
	motors  map[string]*Motor
	log     *log.Logger

	ticker   *time.Ticker
	stopChan chan struct{}
	running  bool

	onTransition func(name string, from, to State)

	// tickInterval is the idle-timer callback period, used as given (it
	// is not clamped); it need not match any motor's own timeout, only
	// resolve it finely enough.
	tickInterval time.Duration
}

// NewManager returns an empty manager. tickInterval should be well
// under the shortest configured motor idle timeout; callers typically
// pick something on the order of 1 second.
func NewManager(tickInterval time.Duration) *Manager {
	return &Manager{
		motors:       make(map[string]*Motor),
		log:          log.New("motorpower"),
		tickInterval: tickInterval,
	}
}

// OnTransition registers a callback fired every time a motor's power
// state actually changes, the hook pkg/motion uses to drive the
// set_enable(motor, on) hardware call spec.md §6 asks for.
func (mgr *Manager) OnTransition(fn func(name string, from, to State)) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.onTransition = fn
}

// DisableAll immediately cuts every registered motor to StateOff,
// regardless of policy. This is the pkg/alarm.MotorDisabler the runtime
// alarm broadcast calls on a limit-switch trip or invariant breach: power
// must cut now, not after an idle timeout.
func (mgr *Manager) DisableAll() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for _, m := range mgr.motors {
		mgr.transition(m, StateOff)
	}
	return nil
}

// AddMotor registers a motor under the manager, starting OFF.
func (mgr *Manager) AddMotor(name string, policy Policy, idleTimeout float64) *Motor {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	m := NewMotor(name, policy, idleTimeout)
	mgr.motors[name] = m
	return m
}

// State returns the named motor's current state, or StateOff if unknown.
func (mgr *Manager) State(name string) State {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	m, ok := mgr.motors[name]
	if !ok {
		return StateOff
	}
	return m.state
}

// OnCycleStart marks every named motor RUNNING and resets its idle
// timer, called by the executor/feedhold layer when a block begins
// moving that motor's axis.
func (mgr *Manager) OnCycleStart(names ...string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for _, name := range names {
		m, ok := mgr.motors[name]
		if !ok {
			continue
		}
		mgr.transition(m, StateRunning)
		m.idleElapsed = 0
	}
}

// OnCycleEnd marks every named motor's cycle over: under
// energized-during-cycle, power cuts immediately (OFF); under every
// other policy, the motor drops to STOPPED and starts counting down to
// IDLE.
func (mgr *Manager) OnCycleEnd(names ...string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for _, name := range names {
		m, ok := mgr.motors[name]
		if !ok {
			continue
		}
		if m.Policy == PolicyEnergizedDuringCycle {
			mgr.transition(m, StateOff)
			continue
		}
		mgr.transition(m, StateStopped)
		m.idleElapsed = 0
	}
}

// Start begins the periodic idle-timer callback.
func (mgr *Manager) Start() {
	mgr.mu.Lock()
	if mgr.running {
		mgr.mu.Unlock()
		return
	}
	mgr.running = true
	mgr.ticker = time.NewTicker(mgr.tickInterval)
	mgr.stopChan = make(chan struct{})
	ticker := mgr.ticker
	stop := mgr.stopChan
	mgr.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				mgr.tick(mgr.tickInterval.Seconds())
			}
		}
	}()
}

// Stop halts the periodic callback.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	if !mgr.running {
		mgr.mu.Unlock()
		return
	}
	mgr.running = false
	mgr.ticker.Stop()
	close(mgr.stopChan)
	mgr.mu.Unlock()
}

// tick decrements every STOPPED motor's idle timer by dt seconds,
// transitioning to IDLE once it expires. Only PolicyIdleWhenStopped (and
// the reserved policies that currently alias it) ever reach IDLE; under
// PolicyEnergizedDuringCycle a motor is already OFF the instant its
// cycle ends, so it never accrues idle time here.
func (mgr *Manager) tick(dt float64) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for _, m := range mgr.motors {
		if m.state != StateStopped {
			continue
		}
		m.idleElapsed += dt
		if m.idleElapsed >= m.IdleTimeout {
			mgr.transition(m, StateIdle)
		}
	}
}

// transition moves m to next, logging the change at debug level; no-op
// if already in that state.
func (mgr *Manager) transition(m *Motor, next State) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	mgr.log.WithFields(log.Fields{
		"motor": m.Name, "from": prev.String(), "to": next.String(),
	}).Debug("motor power transition")
	if mgr.onTransition != nil {
		mgr.onTransition(m.Name, prev, next)
	}
}
