// Package canonical implements the canonical machining model: modal
// G-code state, the coordinate transform that turns a command's input
// values into an absolute-mm target, move-time selection, and the modal
// and planner-queued operations that bridge command input to the look-ahead
// planner.
package canonical

import "cncmotion/pkg/axis"

// UnitsMode selects how linear input values are interpreted before they
// are converted to canonical millimetres.
type UnitsMode int

const (
	UnitsMM UnitsMode = iota
	UnitsInches
)

const mmPerInch = 25.4

// DistanceMode selects whether axis words are absolute targets or
// increments on the current position.
type DistanceMode int

const (
	DistanceAbsolute DistanceMode = iota
	DistanceIncremental
)

// CoordSystem indexes the six work coordinate systems, G54 through G59.
// G53 (absolute_override) is not a member of this set; it is a one-shot
// flag on GCodeModel that zeroes every offset's contribution for a single
// call.
type CoordSystem int

const (
	G54 CoordSystem = iota
	G55
	G56
	G57
	G58
	G59
	numCoordSystems
)

// Plane selects the active arc/plane-control plane.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
)

// PathControl selects cornering behavior between planner-queued moves.
type PathControl int

const (
	PathExactStop PathControl = iota
	PathExactPath
	PathContinuous
)

// MotionMode is the currently active G0/G1/G2/G3/cancel modal group 1 state.
type MotionMode int

const (
	MotionCancel MotionMode = iota
	MotionTraverse
	MotionFeed
	MotionArcCW
	MotionArcCCW
)

// SpindleMode selects spindle rotation direction, or off.
type SpindleMode int

const (
	SpindleOff SpindleMode = iota
	SpindleCW
	SpindleCCW
)

// Overrides bundles an enable flag and scale factor for one override
// category (feed, traverse, spindle).
type Overrides struct {
	FeedEnable     bool
	FeedFactor     float64
	TraverseEnable bool
	TraverseFactor float64
	SpindleEnable  bool
	SpindleFactor  float64
}

// DefaultOverrides returns factor=1.0, enabled, for every category —
// M48's reset state.
func DefaultOverrides() Overrides {
	return Overrides{
		FeedEnable: true, FeedFactor: 1.0,
		TraverseEnable: true, TraverseFactor: 1.0,
		SpindleEnable: true, SpindleFactor: 1.0,
	}
}

// GCodeModel (gm) is the process-wide canonical-form modal state. It is
// mutated only from the MAIN context, except for fields a queued command
// block's callback writes when it runs in EXEC — those fields are
// documented at each mutator and are written before the owning command
// block's state flips to QUEUED.
type GCodeModel struct {
	Position axis.Vector
	Target   axis.Vector

	FeedRate             float64
	InverseFeedRate      float64
	InverseFeedRateMode  bool

	UnitsMode    UnitsMode
	DistanceMode DistanceMode

	CoordSystem        CoordSystem
	OriginOffset       axis.Vector
	OriginOffsetEnable bool
	AbsoluteOverride   bool

	MotionMode  MotionMode
	PathControl PathControl
	SelectPlane Plane

	SpindleMode  SpindleMode
	SpindleSpeed float64
	Tool         int
	MistCoolant  bool
	FloodCoolant bool

	Overrides Overrides

	LineNum   int
	ArcOffset [3]float64
	ArcRadius float64

	G28Position axis.Vector
	G30Position axis.Vector
}

// NewGCodeModel returns the modal state NIST RS274NGC mandates at boot /
// after M2/M30: absolute distance mode, units-per-minute feed mode,
// plane XY, coordinate system G54, motion mode cancelled, overrides on
// at 1.0, spindle and coolant off.
func NewGCodeModel() *GCodeModel {
	return &GCodeModel{
		UnitsMode:    UnitsMM,
		DistanceMode: DistanceAbsolute,
		CoordSystem:  G54,
		SelectPlane:  PlaneXY,
		MotionMode:   MotionCancel,
		PathControl:  PathExactPath,
		Overrides:    DefaultOverrides(),
	}
}

// ResetModal restores the NIST 3.6.1 program-end modal reset: G92 offsets
// cleared, default coordinate system, default plane, default distance and
// units mode, spindle and flood off, feed mode units/minute, motion mode
// cancelled.
func (gm *GCodeModel) ResetModal() {
	gm.OriginOffset = axis.Vector{}
	gm.OriginOffsetEnable = false
	gm.AbsoluteOverride = false
	gm.CoordSystem = G54
	gm.SelectPlane = PlaneXY
	gm.DistanceMode = DistanceAbsolute
	gm.UnitsMode = UnitsMM
	gm.SpindleMode = SpindleOff
	gm.SpindleSpeed = 0
	gm.FloodCoolant = false
	gm.MistCoolant = false
	gm.InverseFeedRateMode = false
	gm.MotionMode = MotionCancel
}

// AxisConfig is a per-axis entry of Configuration.
type AxisConfig struct {
	Mode         axis.Mode
	FeedrateMax  float64 // mm/min (or deg/min for ABC in standard/inhibited mode)
	VelocityMax  float64
	JerkMax      float64
	Radius       float64 // mm, used only when Mode == axis.ModeRadius
	StepsPerUnit float64 // steps per mm (or per degree for ABC)
}

// MotorConfig is a per-motor entry, opaque to the motion pipeline beyond
// what C1/C2 need to drive pulses.
type MotorConfig struct {
	Polarity    bool
	Microsteps  int
	PowerMode   string
	IdleTimeout float64 // seconds
}

// Configuration (cfg) is the persisted, opaque-to-callers configuration
// table: per-axis kinematics, per-coordinate-system offsets, per-motor
// drive parameters. It is populated once at init from pkg/config and
// treated as read-only by the motion pipeline thereafter.
type Configuration struct {
	Axis  [axis.AXES]AxisConfig
	Motor [axis.AXES]MotorConfig

	// Offset[cs][axis] for cs in {G54..G59}; G53 is handled via
	// AbsoluteOverride rather than a table entry.
	Offset [int(numCoordSystems)][axis.AXES]float64
}

// NewConfiguration returns a Configuration with every axis in standard
// mode and generous but finite limits; callers load real values from
// pkg/config before motion begins.
func NewConfiguration() *Configuration {
	cfg := &Configuration{}
	for i := range cfg.Axis {
		cfg.Axis[i] = AxisConfig{
			Mode:         axis.ModeStandard,
			FeedrateMax:  1000,
			VelocityMax:  1000,
			JerkMax:      50_000_000,
			StepsPerUnit: 80,
		}
	}
	return cfg
}
