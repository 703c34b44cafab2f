// Package limitswitch wires per-axis limit switch triggers into the
// runtime alarm broadcast (pkg/alarm), per spec.md §7: "limit switch
// fired ... stops steppers immediately ... transitions machine_state to
// ALARM." It is grounded on the teacher's endstop.Endstop/EndstopGroup
// debounce-and-trigger pattern, narrowed from endstop's
// homing-wait/query-callback machinery (out of this core's scope) down
// to the one thing spec.md actually asks of a limit switch: debounce a
// trigger and broadcast it.
package limitswitch

import (
	"fmt"
	"sync"
	"time"

	"cncmotion/pkg/axis"
)

// State is a switch's last-observed condition.
type State int

const (
	StateUnknown State = iota
	StateOpen
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// AlarmRaiser is the one thing limitswitch needs from pkg/alarm, kept
// as an interface so this package doesn't import it directly.
type AlarmRaiser interface {
	TriggerLimitSwitch(axisName string) error
}

// Switch tracks one physical limit switch's debounced state.
type Switch struct {
	mu sync.Mutex

	axisName     string
	debounce     time.Duration
	state        State
	lastDebounce time.Time
	lastTrigger  time.Time
}

func newSwitch(axisName string, debounce time.Duration) *Switch {
	return &Switch{axisName: axisName, debounce: debounce, state: StateUnknown}
}

// State returns the switch's last-debounced state.
func (s *Switch) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// observe applies debouncing and updates state, reporting whether this
// call produced a fresh (non-debounced-away) trigger.
func (s *Switch) observe(triggered bool, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !triggered {
		s.state = StateOpen
		return false
	}
	if now.Sub(s.lastDebounce) < s.debounce {
		return false
	}
	s.lastDebounce = now
	s.lastTrigger = now
	wasOpen := s.state != StateTriggered
	s.state = StateTriggered
	return wasOpen
}

// reset clears the switch back to unknown, used after an explicit
// un-ALARM so the old trip no longer reads as triggered. The next
// triggered reading outside the debounce window counts as fresh and
// raises the alarm again.
func (s *Switch) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUnknown
}

// Group owns one limit switch per configured axis and forwards fresh
// triggers to the alarm broadcast.
type Group struct {
	mu       sync.RWMutex
	switches map[axis.Index]*Switch
	alarm    AlarmRaiser
}

// NewGroup returns an empty group reporting into alarm.
func NewGroup(alarm AlarmRaiser) *Group {
	return &Group{switches: make(map[axis.Index]*Switch), alarm: alarm}
}

// Register adds a limit switch for the given axis with the given
// debounce window.
func (g *Group) Register(i axis.Index, debounce time.Duration) *Switch {
	g.mu.Lock()
	defer g.mu.Unlock()
	sw := newSwitch(i.String(), debounce)
	g.switches[i] = sw
	return sw
}

// HandleTrigger is called by the hardware/MCU event path whenever the
// named axis's switch line changes. triggered=false (the line went
// open) never raises the alarm; a debounced-fresh triggered=true does.
func (g *Group) HandleTrigger(i axis.Index, triggered bool) error {
	g.mu.RLock()
	sw, ok := g.switches[i]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("limitswitch: no switch registered for axis %v", i)
	}

	if !sw.observe(triggered, time.Now()) {
		return nil
	}
	if g.alarm == nil {
		return nil
	}
	return g.alarm.TriggerLimitSwitch(sw.axisName)
}

// State returns the named axis's last-debounced switch state, or
// StateUnknown if no switch is registered for it.
func (g *Group) State(i axis.Index) State {
	g.mu.RLock()
	sw, ok := g.switches[i]
	g.mu.RUnlock()
	if !ok {
		return StateUnknown
	}
	return sw.State()
}

// AnyTriggered reports whether any registered switch currently reads
// triggered.
func (g *Group) AnyTriggered() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, sw := range g.switches {
		if sw.State() == StateTriggered {
			return true
		}
	}
	return false
}

// Reset clears every switch to StateUnknown, called once the alarm
// broadcast has been explicitly cleared.
func (g *Group) Reset() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, sw := range g.switches {
		sw.reset()
	}
}
