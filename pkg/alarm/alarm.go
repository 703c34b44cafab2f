// Package alarm implements the runtime alarm broadcast: spec.md §7's
// "limit switch fired, or firmware-internal invariant breach" path that
// stops steppers immediately, cancels the spindle, and forces
// machine_state to ALARM machine-wide, requiring an explicit un-ALARM
// command to clear. It is grounded on the teacher's safety.Manager
// emergency-stop/shutdown broadcast, narrowed to the single ALARM state
// this core's error model calls for instead of safety's multi-state
// shutdown lifecycle.
package alarm

import (
	"fmt"
	"sync"
	"time"

	"cncmotion/pkg/errors"
	"cncmotion/pkg/log"
)

// Reason identifies what tripped the alarm.
type Reason string

const (
	ReasonLimitSwitch Reason = "limit_switch"
	ReasonInvariant   Reason = "invariant_breach"
	ReasonExplicit    Reason = "explicit_request"
)

// MotorDisabler can cut power to every motor immediately.
type MotorDisabler interface {
	DisableAll() error
}

// SpindleCanceler can stop the spindle immediately, outside the normal
// command queue.
type SpindleCanceler interface {
	CancelSpindle()
}

// Manager owns the machine-wide alarm state and broadcasts it to every
// registered collaborator. A single Manager is shared across MAIN, EXEC,
// and whatever context observes the limit switches.
type Manager struct {
	mu sync.Mutex

	alarmed bool
	reason  Reason
	message string
	tripped time.Time

	motors   []MotorDisabler
	spindles []SpindleCanceler
	onAlarm  []func(reason Reason, msg string)
	onClear  []func()

	log *log.Logger
}

// New returns a Manager in the cleared (non-alarmed) state.
func New() *Manager {
	return &Manager{log: log.New("alarm")}
}

// RegisterMotors registers a collaborator whose motors get cut on alarm.
func (m *Manager) RegisterMotors(d MotorDisabler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.motors = append(m.motors, d)
}

// RegisterSpindle registers a collaborator whose spindle gets cancelled
// on alarm.
func (m *Manager) RegisterSpindle(s SpindleCanceler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spindles = append(m.spindles, s)
}

// OnAlarm registers a callback fired when the alarm trips (e.g. the
// canonical machine's SetAlarm, or a status-reporter upcall).
func (m *Manager) OnAlarm(fn func(reason Reason, msg string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlarm = append(m.onAlarm, fn)
}

// OnClear registers a callback fired when the alarm is explicitly
// cleared.
func (m *Manager) OnClear(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClear = append(m.onClear, fn)
}

// IsAlarmed reports whether the machine is currently in ALARM.
func (m *Manager) IsAlarmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alarmed
}

// TriggerLimitSwitch raises the alarm because the named axis's limit
// switch fired.
func (m *Manager) TriggerLimitSwitch(axisName string) error {
	return m.trigger(ReasonLimitSwitch, errors.RuntimeLimitSwitchError(axisName).Error())
}

// TriggerInvariant raises the alarm because a firmware-internal
// invariant broke (e.g. the trapezoid solver's head+body+tail sum
// disagreeing with the block length beyond tolerance).
func (m *Manager) TriggerInvariant(reason string) error {
	return m.trigger(ReasonInvariant, errors.RuntimeAlarmError(reason).Error())
}

// Trigger raises the alarm for an arbitrary explicit reason (e.g. an
// operator-issued emergency stop).
func (m *Manager) Trigger(msg string) error {
	return m.trigger(ReasonExplicit, msg)
}

// trigger performs the broadcast: stop motors, cancel spindles, set the
// alarm flag, then fan out to every registered callback. Per spec.md §7
// alarms supersede holds and are never retried automatically; a second
// trigger while already alarmed is a silent no-op.
func (m *Manager) trigger(reason Reason, msg string) error {
	m.mu.Lock()
	if m.alarmed {
		m.mu.Unlock()
		return nil
	}
	m.alarmed = true
	m.reason = reason
	m.message = msg
	m.tripped = time.Now()

	motors := append([]MotorDisabler(nil), m.motors...)
	spindles := append([]SpindleCanceler(nil), m.spindles...)
	onAlarm := append([]func(Reason, string){}, m.onAlarm...)
	m.mu.Unlock()

	m.log.WithField("reason", string(reason)).Error(msg)

	var firstErr error
	for _, d := range motors {
		if err := d.DisableAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range spindles {
		s.CancelSpindle()
	}
	for _, fn := range onAlarm {
		fn(reason, msg)
	}
	return firstErr
}

// Clear implements the explicit un-ALARM command required to leave
// ALARM. It is the only way out: no automatic retry or timeout clears
// it.
func (m *Manager) Clear() error {
	m.mu.Lock()
	if !m.alarmed {
		m.mu.Unlock()
		return fmt.Errorf("alarm: not currently alarmed")
	}
	m.alarmed = false
	onClear := append([]func(){}, m.onClear...)
	m.mu.Unlock()

	m.log.Info("alarm cleared")
	for _, fn := range onClear {
		fn()
	}
	return nil
}

// Status summarizes the current alarm state for a status-reporter
// upcall.
type Status struct {
	Alarmed bool
	Reason  Reason
	Message string
	Tripped time.Time
}

// Status returns a snapshot of the current alarm state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Alarmed: m.alarmed, Reason: m.reason, Message: m.message, Tripped: m.tripped}
}
