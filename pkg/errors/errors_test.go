package errors

import (
	"errors"
	"testing"
)

func TestHostErrorWrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrRuntimeQueue, "enqueue failed")
	if errors.Unwrap(err) != cause {
		t.Fatalf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if err.Code != ErrRuntimeQueue {
		t.Fatalf("Code = %v, want %v", err.Code, ErrRuntimeQueue)
	}
}

func TestSetters(t *testing.T) {
	err := New(ErrConfigOption, "bad option").
		SetSection("axis_x").
		SetOption("jerk").
		SetContext("value", -1)

	if err.Section != "axis_x" || err.Option != "jerk" {
		t.Fatalf("setters did not stick: %+v", err)
	}
	if err.Context["value"] != -1 {
		t.Fatalf("context not set: %+v", err.Context)
	}
}

func TestIsFamilies(t *testing.T) {
	cases := []struct {
		err  *HostError
		fn   func(error) bool
		want bool
	}{
		{ConfigSectionError("motion"), IsConfig, true},
		{ConfigSectionError("motion"), IsCanonical, false},
		{CanonicalStateError("alarm active"), IsCanonical, true},
		{PlannerFullError(), IsPlanner, true},
		{RuntimeAlarmError("e-stop"), IsRuntime, true},
		{RuntimeLimitSwitchError("X"), IsRuntime, true},
	}
	for _, c := range cases {
		if got := c.fn(c.err); got != c.want {
			t.Errorf("classifying %v: got %v, want %v", c.err.Code, got, c.want)
		}
	}
}

func TestRecoverPanicString(t *testing.T) {
	fn := func() (err *HostError) {
		defer func() {
			err = RecoverPanic()
		}()
		panic("something broke")
	}
	err := fn()
	if err == nil || err.Code != ErrRuntime {
		t.Fatalf("RecoverPanic() = %v", err)
	}
}

func TestRuntimeLimitSwitchErrorAxis(t *testing.T) {
	err := RuntimeLimitSwitchError("Y")
	if err.Section != "Y" {
		t.Fatalf("Section = %q, want Y", err.Section)
	}
}
