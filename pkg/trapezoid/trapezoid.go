// Package trapezoid computes jerk-limited head/body/tail profiles for a
// single planner block, and the supporting jerk-kinematics functions shared
// with the planner's back-planning pass.
//
// The classification order below is a correctness requirement, not a style
// choice: shortest/degenerate cases are tried first, exactly as in the
// firmware this was ported from.
package trapezoid

import (
	"math"

	"cncmotion/pkg/errors"
)

// Constants bundles the configured timing constants the solver needs.
// TMin is "minimum segment time plus margin"; TNom is the nominal segment
// duration. Both are in minutes, matching the mm/min velocities carried in
// Input, so that TMin*velocity and TNom*velocity yield lengths in mm
// comparable to Input.Length.
type Constants struct {
	TMin            float64
	TNom            float64
	VelocityEpsilon float64 // tolerance for "matched velocities"
	IterTolerance   float64 // HT' convergence tolerance (fractional)
	MaxIterHT       int     // cap on the HT' rescale loop
	MaxIterNewton   int     // cap on target_velocity's Newton-Raphson refinement
}

// DefaultConstants mirrors the values a 100 kHz DDA / 5 ms segment core
// would configure: TMin is one nominal segment plus half a segment of
// margin (7.5ms), TNom is the nominal segment duration (5ms), both
// expressed in minutes.
func DefaultConstants() Constants {
	return Constants{
		TMin:            0.0075 / 60.0,
		TNom:            0.005 / 60.0,
		VelocityEpsilon: 2.0,
		IterTolerance:   0.10,
		MaxIterHT:       8,
		MaxIterNewton:   20,
	}
}

// Input describes one block's trapezoid problem.
type Input struct {
	Length     float64
	Entry      float64
	Cruise     float64
	Exit       float64
	CruiseVmax float64
	DeltaVmax  float64
	Jerk       float64
	RecipJerk  float64 // 1/Jerk, precomputed
	CbrtJerk   float64 // cbrt(Jerk), precomputed
}

// Result is the solved profile. Cruise and Exit may have been adjusted from
// the Input's requested values by degradation.
type Result struct {
	Head, Body, Tail float64
	Cruise, Exit     float64
	Case             string // which classification fired, for logging/tests
}

// TargetLength returns the distance needed for a jerk-limited S-curve
// between velocities v1 and v2: (v1+v2)*sqrt(|v2-v1|*recipJerk).
func TargetLength(v1, v2, recipJerk float64) float64 {
	return (v1 + v2) * math.Sqrt(math.Abs(v2-v1)*recipJerk)
}

// TargetVelocity returns the velocity reachable from v1 over length L under
// jerk-limited acceleration. It starts from the closed-form estimate
// V ≈ L^(2/3)*cbrtJerk + v1 and refines with Newton-Raphson on
// Z(V) = ((V-v1)(V+v1)^2 / L^2) - Jerk, capped at maxIter.
func TargetVelocity(v1, length, cbrtJerk, jerk float64, maxIter int) float64 {
	if length <= 0 {
		return v1
	}
	v := math.Pow(length, 2.0/3.0)*cbrtJerk + v1
	l2 := length * length
	for i := 0; i < maxIter; i++ {
		z := (v-v1)*(v+v1)*(v+v1)/l2 - jerk
		if math.Abs(z) < jerk*1e-6 {
			break
		}
		zp := (2*v1*v - v1*v1 + 3*v*v) / l2
		if zp == 0 {
			break
		}
		next := v - z/zp
		if next < v1 {
			next = v1
		}
		if math.Abs(next-v) < 1e-9 {
			v = next
			break
		}
		v = next
	}
	return v
}

func clampMin(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

// Solve classifies in and returns its head/body/tail profile.
func Solve(in Input, c Constants) (Result, error) {
	if in.Length <= 0 {
		return Result{}, errors.TrapezoidDegenerateError("length must be positive")
	}

	entry, cruise, exit := in.Entry, in.Cruise, in.Exit
	minHead := c.TMin * (cruise + entry)
	minTail := c.TMin * (cruise + exit)
	minBody := c.TMin * cruise

	// Case 1: single-segment body (B''/F).
	if in.Length/cruise <= c.TNom {
		if in.Length/cruise < c.TMin {
			cruise = in.Length / c.TMin
		}
		exit = math.Max(0, math.Min(cruise, entry-in.DeltaVmax))
		return Result{Body: in.Length, Cruise: cruise, Exit: exit, Case: "B''/F"}, nil
	}

	// Case 2: matched velocities (B).
	if math.Abs(cruise-entry) < c.VelocityEpsilon && math.Abs(cruise-exit) < c.VelocityEpsilon {
		return Result{Body: in.Length, Cruise: cruise, Exit: exit, Case: "B"}, nil
	}

	// Case 3: short head-only or tail-only. entry == exit falls through to
	// the symmetric rate-limited HT path (Case 4) rather than being forced
	// into one of the one-sided branches.
	if in.Length <= minHead+minBody+minTail {
		if entry > exit {
			// Tail-only.
			if in.Length < minTail {
				exit = math.Max(0, in.Length/c.TMin-entry)
			}
			return Result{Tail: in.Length, Cruise: entry, Exit: exit, Case: "T''"}, nil
		}
		if entry < exit {
			// Head-only (symmetric: entry/exit swapped).
			if in.Length < minHead {
				entry = math.Max(0, in.Length/c.TMin-exit)
			}
			return Result{Head: in.Length, Cruise: exit, Exit: exit, Case: "H''"}, nil
		}
	}

	// Case 4: rate-limited symmetric (HT).
	if math.Abs(entry-exit) < c.VelocityEpsilon {
		headIdeal := clampMin(TargetLength(entry, cruise, in.RecipJerk), minHead)
		tailIdeal := clampMin(TargetLength(exit, cruise, in.RecipJerk), minTail)
		if in.Length < headIdeal+tailIdeal {
			head := in.Length / 2
			tail := in.Length / 2
			newCruise := math.Min(in.CruiseVmax, TargetVelocity(entry, head, in.CbrtJerk, in.Jerk, c.MaxIterNewton))
			if head < minHead {
				mid := (entry + newCruise) / 2
				return Result{Body: in.Length, Cruise: mid, Exit: mid, Case: "HT-collapsed"}, nil
			}
			return Result{Head: head, Tail: tail, Cruise: newCruise, Exit: exit, Case: "HT"}, nil
		}
	}

	// Case 5: rate-limited asymmetric (HT').
	{
		headAtVmax := clampMin(TargetLength(entry, in.CruiseVmax, in.RecipJerk), minHead)
		tailAtVmax := clampMin(TargetLength(exit, in.CruiseVmax, in.RecipJerk), minTail)
		if headAtVmax+tailAtVmax > in.Length {
			c2 := in.CruiseVmax
			prev := 0.0
			var head, tail float64
			for iter := 0; iter < c.MaxIterHT; iter++ {
				head = clampMin(TargetLength(entry, c2, in.RecipJerk), minHead)
				tail = clampMin(TargetLength(exit, c2, in.RecipJerk), minTail)
				total := head + tail
				if total > in.Length {
					scale := in.Length / total
					if head >= tail {
						head *= scale
						c2 = TargetVelocity(entry, head, in.CbrtJerk, in.Jerk, c.MaxIterNewton)
					} else {
						tail *= scale
						c2 = TargetVelocity(exit, tail, in.CbrtJerk, in.Jerk, c.MaxIterNewton)
					}
				}
				if prev > 0 && math.Abs(c2-prev)/c2 < c.IterTolerance {
					break
				}
				prev = c2
			}
			head = TargetLength(entry, c2, in.RecipJerk)
			tail = in.Length - head
			switch {
			case head < minHead:
				return Result{Tail: in.Length, Cruise: exit, Exit: exit, Case: "HT'-all-tail"}, nil
			case tail < minTail:
				newCruise := TargetVelocity(entry, in.Length, in.CbrtJerk, in.Jerk, c.MaxIterNewton)
				return Result{Head: in.Length, Cruise: newCruise, Exit: exit, Case: "HT'-all-head"}, nil
			default:
				return Result{Head: head, Tail: tail, Cruise: c2, Exit: exit, Case: "HT'"}, nil
			}
		}
	}

	// Case 6: requested fit (HBT/HB/BT/H/T/B).
	head := TargetLength(entry, cruise, in.RecipJerk)
	tail := TargetLength(exit, cruise, in.RecipJerk)
	body := in.Length - head - tail
	if body > 0 && body < minBody {
		switch {
		case head > 0 && tail > 0:
			total := head + tail
			head += body * (head / total)
			tail += body * (tail / total)
		case head > 0:
			head += body
		case tail > 0:
			tail += body
		default:
			cruise = entry
			body = in.Length
			return Result{Body: body, Cruise: cruise, Exit: exit, Case: "B-snap"}, nil
		}
		body = 0
	}
	return Result{Head: head, Body: body, Tail: tail, Cruise: cruise, Exit: exit, Case: "HBT"}, nil
}
