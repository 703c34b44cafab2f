package canonical

import (
	"math"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/errors"
)

// CoordOffset returns the work-coordinate-system contribution for one
// axis: cfg.offset[coord_system][axis] plus the origin offset if enabled,
// or zero outright if AbsoluteOverride (G53) is in effect for this call.
func (cm *Machine) CoordOffset(i axis.Index) float64 {
	if cm.gm.AbsoluteOverride {
		return 0
	}
	off := cm.cfg.Offset[cm.gm.CoordSystem][i]
	if cm.gm.OriginOffsetEnable {
		off += cm.gm.OriginOffset[i]
	}
	return off
}

// SetTarget applies set_target's coordinate transform: for each flagged
// axis, convert the input to canonical mm/degrees and combine it with the
// current target according to distance mode and axis kind, writing into
// gm.Target. flag[i] selects which axes this call touches; axes whose
// AxisConfig.Mode is axis.ModeDisabled are rejected.
func (cm *Machine) SetTarget(input axis.Vector, flag [axis.AXES]bool) error {
	for _, i := range axis.XYZ {
		if !flag[i] {
			continue
		}
		if cm.cfg.Axis[i].Mode == axis.ModeDisabled {
			return errors.CanonicalTargetError(i.String(), "axis disabled")
		}
		mm := cm.toMillimetres(input[i])
		if cm.gm.DistanceMode == DistanceAbsolute {
			cm.gm.Target[i] = cm.CoordOffset(i) + mm
		} else {
			cm.gm.Target[i] += mm
		}
	}

	for _, i := range axis.ABC {
		if !flag[i] {
			continue
		}
		mode := cm.cfg.Axis[i].Mode
		if mode == axis.ModeDisabled {
			return errors.CanonicalTargetError(i.String(), "axis disabled")
		}
		var degrees float64
		switch mode {
		case axis.ModeRadius:
			r := cm.cfg.Axis[i].Radius
			if r <= 0 {
				return errors.CanonicalTargetError(i.String(), "radius mode requires positive configured radius")
			}
			linear := cm.toMillimetres(input[i])
			degrees = linear * 360 / (2 * math.Pi * r)
		default: // standard, inhibited: input is already degrees
			degrees = input[i]
		}
		if cm.gm.DistanceMode == DistanceAbsolute {
			cm.gm.Target[i] = cm.CoordOffset(i) + degrees
		} else {
			cm.gm.Target[i] += degrees
		}
	}
	return nil
}

// toMillimetres converts a linear input value from the current units mode
// into canonical millimetres.
func (cm *Machine) toMillimetres(v float64) float64 {
	if cm.gm.UnitsMode == UnitsInches {
		return v * mmPerInch
	}
	return v
}

// MoveTimes computes the pair of candidate times NIST RS274NGC §2.1.2.5
// describes for the move from gm.Position to gm.Target: minTime (the
// fastest the machine's per-axis limits allow) and optimalTime (the
// slowest of the requested constraints, i.e. the one that actually
// governs cruise velocity).
func (cm *Machine) MoveTimes(isFeed bool) (minTime, optimalTime float64) {
	gm, cfg := cm.gm, cm.cfg

	var rateLimitingTime float64
	for i := axis.Index(0); i < axis.AXES; i++ {
		delta := math.Abs(gm.Target[i] - gm.Position[i])
		if delta == 0 {
			continue
		}
		limit := cfg.Axis[i].VelocityMax
		if isFeed {
			limit = cfg.Axis[i].FeedrateMax
		}
		if limit <= 0 {
			continue
		}
		t := delta / limit
		if minTime == 0 || t < minTime {
			minTime = t
		}
		if t > rateLimitingTime {
			rateLimitingTime = t
		}
	}

	optimalTime = rateLimitingTime
	if !isFeed {
		// Traverses (G0) always run at the per-axis rate limit; there is
		// no modal feed rate to weigh against it.
		return minTime, optimalTime
	}

	xyzNorm := axis.NormSub(gm.Target, gm.Position, axis.XYZ...)
	abcNorm := axis.NormSub(gm.Target, gm.Position, axis.ABC...)

	if gm.InverseFeedRateMode {
		// Under G93, F is moves-per-minute: the move's duration in
		// minutes is 1/F, not F itself.
		if gm.InverseFeedRate > 0 {
			optimalTime = math.Max(optimalTime, 1/gm.InverseFeedRate)
		}
	} else if gm.FeedRate > 0 {
		if xyzNorm > 0 {
			optimalTime = math.Max(optimalTime, xyzNorm/gm.FeedRate)
		} else if abcNorm > 0 {
			optimalTime = math.Max(optimalTime, abcNorm/gm.FeedRate)
		}
	}
	return minTime, optimalTime
}
