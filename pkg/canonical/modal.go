package canonical

import (
	"cncmotion/pkg/axis"
	"cncmotion/pkg/errors"
)

// The operations in this file are all "model-only": they take effect
// immediately on gm and never touch the planner. Per spec they must not
// be queued — a command block running later must never re-execute them.

// SetUnits implements G20 (inches) / G21 (mm).
func (cm *Machine) SetUnits(mode UnitsMode) {
	cm.gm.UnitsMode = mode
}

// SetDistanceMode implements G90 (absolute) / G91 (incremental).
func (cm *Machine) SetDistanceMode(mode DistanceMode) {
	cm.gm.DistanceMode = mode
}

// SetPlane implements G17/G18/G19.
func (cm *Machine) SetPlane(p Plane) {
	cm.gm.SelectPlane = p
}

// SetFeedRate implements the F word. In inverse-time mode (G93) F sets
// InverseFeedRate instead of FeedRate. A zero or negative value is
// rejected in either mode.
func (cm *Machine) SetFeedRate(f float64) error {
	if cm.gm.InverseFeedRateMode {
		if f <= 0 {
			return errors.CanonicalFeedError("inverse feed rate must be positive")
		}
		cm.gm.InverseFeedRate = f
		return nil
	}
	if f <= 0 {
		return errors.CanonicalFeedError("feed rate must be positive in non-inverse mode")
	}
	cm.gm.FeedRate = f
	return nil
}

// SetInverseFeedMode implements G93 (inverse time) / G94 (units/minute).
// Switching to G94 does not itself restore a feed rate; the next F word
// (per-block) supplies it, per end-to-end scenario 3.
func (cm *Machine) SetInverseFeedMode(enable bool) {
	cm.gm.InverseFeedRateMode = enable
}

// SetPathControl implements G61 (exact stop/path) / G64 (continuous).
func (cm *Machine) SetPathControl(p PathControl) {
	cm.gm.PathControl = p
}

// SetCoordinateOffsets implements G10 L2: sets cfg.offset[cs][axis] for
// each flagged axis directly (not a gm field — the offset table is part
// of Configuration and persists across coordinate-system switches).
func (cm *Machine) SetCoordinateOffsets(cs CoordSystem, values axis.Vector, flag [axis.AXES]bool) error {
	if cs < 0 || cs >= numCoordSystems {
		return errors.CanonicalCoordError(int(cs))
	}
	for i := axis.Index(0); i < axis.AXES; i++ {
		if flag[i] {
			cm.cfg.Offset[cs][i] = values[i]
		}
	}
	return nil
}

// SelectCoordinateSystem implements G54-G59. Unlike G10 L2 this is a
// planner-queued operation (it must take effect in FIFO order relative to
// motion already in the queue) and is enqueued as a command block by the
// caller in machine.go rather than applied here directly; this setter is
// the callback body that command block runs.
func (cm *Machine) SelectCoordinateSystem(cs CoordSystem) {
	cm.gm.CoordSystem = cs
}

// SetOriginOffsets implements the G92 family: G92 sets origin_offset so
// that the current position reads as the given values in the active
// coordinate system; G92.1/G92.2 clear/disable it; G92.3 restores a
// previously saved value without recomputing.
func (cm *Machine) SetOriginOffsets(values axis.Vector, flag [axis.AXES]bool) {
	for i := axis.Index(0); i < axis.AXES; i++ {
		if !flag[i] {
			continue
		}
		cm.gm.OriginOffset[i] = cm.gm.Position[i] - cm.cfg.Offset[cm.gm.CoordSystem][i] - values[i]
	}
	cm.gm.OriginOffsetEnable = true
}

// ClearOriginOffsets implements G92.1 (reset offsets to zero) / G92.2
// (disable without resetting, per resetZero).
func (cm *Machine) ClearOriginOffsets(resetZero bool) {
	if resetZero {
		cm.gm.OriginOffset = axis.Vector{}
	}
	cm.gm.OriginOffsetEnable = false
}

// RestoreOriginOffsets implements G92.3.
func (cm *Machine) RestoreOriginOffsets(saved axis.Vector) {
	cm.gm.OriginOffset = saved
	cm.gm.OriginOffsetEnable = true
}

// SetAbsoluteOverride arms or disarms the G53 one-shot flag. Callers set
// it true immediately before a single StraightFeed/StraightTraverse call;
// the move functions clear it once that call returns.
func (cm *Machine) SetAbsoluteOverride(on bool) {
	cm.gm.AbsoluteOverride = on
}

// SetFeedOverride implements M50/M50.1 (enable/factor).
func (cm *Machine) SetFeedOverride(enable bool, factor float64) {
	cm.gm.Overrides.FeedEnable = enable
	if factor > 0 {
		cm.gm.Overrides.FeedFactor = factor
	}
}

// SetTraverseOverride implements M50.2/M50.3.
func (cm *Machine) SetTraverseOverride(enable bool, factor float64) {
	cm.gm.Overrides.TraverseEnable = enable
	if factor > 0 {
		cm.gm.Overrides.TraverseFactor = factor
	}
}

// SetSpindleOverride implements M51/M51.1.
func (cm *Machine) SetSpindleOverride(enable bool, factor float64) {
	cm.gm.Overrides.SpindleEnable = enable
	if factor > 0 {
		cm.gm.Overrides.SpindleFactor = factor
	}
}

// ResetOverrides implements M48/M49 (reset every override to enabled,
// factor 1.0) combined: M48 is "restore defaults", M49 is the legacy
// disable-all some dialects map to the same reset state here since
// spec.md does not distinguish their effects beyond "overrides".
func (cm *Machine) ResetOverrides() {
	cm.gm.Overrides = DefaultOverrides()
}

// feedOverrideFactor returns the effective feed-rate scale for a block
// being enqueued right now: FeedFactor if the feed override is enabled,
// else 1.0. Baked in at enqueue time only — see DESIGN.md decision 4.
func (cm *Machine) feedOverrideFactor() float64 {
	if cm.gm.Overrides.FeedEnable {
		return cm.gm.Overrides.FeedFactor
	}
	return 1.0
}

func (cm *Machine) traverseOverrideFactor() float64 {
	if cm.gm.Overrides.TraverseEnable {
		return cm.gm.Overrides.TraverseFactor
	}
	return 1.0
}
