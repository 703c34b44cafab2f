package planner

import (
	"math"

	"cncmotion/pkg/axis"
)

// JunctionAccelTimeConstant converts a jerk value (mm/min^3) into an
// effective centripetal acceleration limit (mm/min^2) for the cornering
// formula below. It has no first-principles derivation in the retrieved
// firmware source (no junction-deviation code shipped with this pack's
// original_source slice) — see DESIGN.md decision 5.
const JunctionAccelTimeConstant = 0.0025

// JunctionDeviation is the configured allowable deviation (mm) from the
// ideal sharp corner, in the style of grbl/TinyG's cornering algorithm.
const JunctionDeviation = 0.05

// junctionVelocity returns the maximum speed permitted at the boundary
// between a block ending with direction prevUnit and one starting with
// nextUnit, given the weaker of the two blocks' jerk. Colinear same-direction
// moves are unclamped by the corner itself (callers still clamp to
// cruiseVmax); an exact reversal yields 0.
func junctionVelocity(prevUnit, nextUnit axis.Vector, jerk float64) float64 {
	cosTheta := axis.Dot(prevUnit, nextUnit)
	if cosTheta > 1 {
		cosTheta = 1
	}
	if cosTheta < -1 {
		cosTheta = -1
	}
	sinHalf := math.Sqrt(math.Max(0, (1+cosTheta)/2))
	if sinHalf > 0.999999 {
		return math.MaxFloat64 // colinear: no corner constraint
	}
	radius := JunctionDeviation * sinHalf / (1 - sinHalf)
	accelLimit := jerk * JunctionAccelTimeConstant
	if accelLimit <= 0 || radius <= 0 {
		return 0
	}
	return math.Sqrt(radius * accelLimit)
}
