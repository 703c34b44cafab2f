// Unified error handling for the motion core.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error.
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Canonical machine errors
	ErrCanonicalState   ErrorCode = "CANONICAL_STATE"
	ErrCanonicalTarget  ErrorCode = "CANONICAL_TARGET"
	ErrCanonicalFeed    ErrorCode = "CANONICAL_FEED"
	ErrCanonicalCoord   ErrorCode = "CANONICAL_COORD"

	// Planner errors
	ErrPlannerFull       ErrorCode = "PLANNER_FULL"
	ErrPlannerBadBlock   ErrorCode = "PLANNER_BAD_BLOCK"
	ErrPlannerOverflow   ErrorCode = "PLANNER_OVERFLOW"

	// Trapezoid solver errors
	ErrTrapezoidDegenerate ErrorCode = "TRAPEZOID_DEGENERATE"

	// Runtime / alarm errors
	ErrRuntime        ErrorCode = "RUNTIME"
	ErrRuntimeInit    ErrorCode = "RUNTIME_INIT"
	ErrRuntimeQueue   ErrorCode = "RUNTIME_QUEUE"
	ErrRuntimeAlarm   ErrorCode = "RUNTIME_ALARM"
	ErrRuntimeLimit   ErrorCode = "RUNTIME_LIMIT_SWITCH"
)

// HostError is the unified error type for the motion core.
type HostError struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable error description.
	Message string

	// File is the source file (if available).
	File string

	// Line is the line number in the source file (if available).
	Line int

	// Section is the config section or context.
	Section string

	// Option is the config option name (if applicable).
	Option string

	// Err wraps the underlying error.
	Err error

	// Context provides additional context.
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *HostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.Option, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Code, e.Section, e.Message)
}

// Unwrap returns the underlying error.
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetFile sets the source file.
func (e *HostError) SetFile(file string) *HostError {
	e.File = file
	return e
}

// SetLine sets the line number.
func (e *HostError) SetLine(line int) *HostError {
	e.Line = line
	return e
}

// SetSection sets the context section.
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option.
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context.
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError.
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for a missing config section.
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigOptionError creates an error for a missing or invalid config option.
func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for a config validation failure.
func ConfigValidationError(section, option string, reason string) *HostError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for a config type conversion failure.
func ConfigTypeError(section, option, value string, targetType string, err error) *HostError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("option '%s' in section '%s': failed to parse '%s' as %s", option, section, value, targetType)).
		SetSection(section).
		SetOption(option)
}

// Canonical machine errors

// CanonicalStateError creates an error for an illegal modal-state transition
// (e.g. a motion command issued while the machine is ALARM or SHUTDOWN).
func CanonicalStateError(message string) *HostError {
	return New(ErrCanonicalState, message)
}

// CanonicalTargetError creates an error for an invalid target vector (NaN,
// axis disabled but commanded, etc).
func CanonicalTargetError(axis string, reason string) *HostError {
	return New(ErrCanonicalTarget, fmt.Sprintf("axis %s: %s", axis, reason)).
		SetSection(axis)
}

// CanonicalFeedError creates an error for an invalid feed rate (zero/negative
// feed in G1 with G94, or G93 with zero move time).
func CanonicalFeedError(reason string) *HostError {
	return New(ErrCanonicalFeed, reason)
}

// CanonicalCoordError creates an error for an invalid coordinate system index.
func CanonicalCoordError(system int) *HostError {
	return New(ErrCanonicalCoord, fmt.Sprintf("coordinate system %d out of range", system))
}

// Planner errors

// PlannerFullError creates an error for a full ring buffer that cannot
// accept a new block before the caller's deadline.
func PlannerFullError() *HostError {
	return New(ErrPlannerFull, "planner ring buffer full")
}

// PlannerBadBlockError creates an error for a block in an unexpected state.
func PlannerBadBlockError(reason string) *HostError {
	return New(ErrPlannerBadBlock, reason)
}

// PlannerOverflowError creates an error for a back-planning pass that could
// not converge within the ring.
func PlannerOverflowError(reason string) *HostError {
	return New(ErrPlannerOverflow, reason)
}

// Trapezoid errors

// TrapezoidDegenerateError creates an error for a move whose trapezoid the
// solver cannot classify; trapezoid.Solve reports this for a non-positive
// length.
func TrapezoidDegenerateError(reason string) *HostError {
	return New(ErrTrapezoidDegenerate, reason)
}

// Runtime / alarm errors

// RuntimeError creates a general runtime error.
func RuntimeError(message string) *HostError {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for initialization failure.
func RuntimeErrorInit(component string, reason string) *HostError {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// RuntimeErrorQueue creates an error for a queue operation failure.
func RuntimeErrorQueue(operation string, reason string) *HostError {
	return New(ErrRuntimeQueue, fmt.Sprintf("queue %s failed: %s", operation, reason))
}

// RuntimeAlarmError creates an error reporting that an operation was refused
// because the machine is in ALARM or SHUTDOWN.
func RuntimeAlarmError(reason string) *HostError {
	return New(ErrRuntimeAlarm, reason)
}

// RuntimeLimitSwitchError creates an error for an unexpected limit-switch
// trigger outside of a homing cycle.
func RuntimeLimitSwitchError(axis string) *HostError {
	return New(ErrRuntimeLimit, fmt.Sprintf("limit switch triggered on axis %s outside homing", axis)).
		SetSection(axis)
}

// Helper functions for adding context

// WithConfigPath adds the config file path to the error context.
func WithConfigPath(err *HostError, path string) *HostError {
	if err == nil {
		return nil
	}
	err.SetContext("config_path", path)
	return err
}

// WithLineNumber adds a line number to the error context.
func WithLineNumber(err *HostError, line int) *HostError {
	if err == nil {
		return nil
	}
	err.SetLine(line)
	return err
}

// RecoverPanic safely recovers from panic and converts it to an error.
func RecoverPanic() *HostError {
	if r := recover(); r != nil {
		var err error
		switch x := r.(type) {
		case string:
			err = RuntimeError(fmt.Sprintf("panic: %s", x))
		case error:
			err = RuntimeError(x.Error())
		case runtime.Error:
			err = RuntimeError(x.Error())
		default:
			err = RuntimeError(fmt.Sprintf("panic: %v", x))
		}
		return err.(*HostError)
	}
	return nil
}

// Is checks if err matches the given error code.
func Is(err error, code ErrorCode) bool {
	if hostErr, ok := err.(*HostError); ok {
		return hostErr.Code == code
	}
	return false
}

// IsConfig checks if err is a config error.
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsCanonical checks if err is a canonical-machine error.
func IsCanonical(err error) bool {
	return Is(err, ErrCanonicalState) ||
		Is(err, ErrCanonicalTarget) ||
		Is(err, ErrCanonicalFeed) ||
		Is(err, ErrCanonicalCoord)
}

// IsPlanner checks if err is a planner error.
func IsPlanner(err error) bool {
	return Is(err, ErrPlannerFull) ||
		Is(err, ErrPlannerBadBlock) ||
		Is(err, ErrPlannerOverflow)
}

// IsRuntime checks if err is a runtime/alarm error.
func IsRuntime(err error) bool {
	return Is(err, ErrRuntime) ||
		Is(err, ErrRuntimeInit) ||
		Is(err, ErrRuntimeQueue) ||
		Is(err, ErrRuntimeAlarm) ||
		Is(err, ErrRuntimeLimit)
}
