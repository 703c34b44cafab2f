package canonical

import (
	"strings"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/config"
)

// LoadConfiguration populates a Configuration from an ini-style pkg/config
// file: one [axis_x]..[axis_c] section per logical axis giving its mode and
// kinematic limits, a matching [motor_x]..[motor_c] section for drive
// parameters, and an optional [coordinate_system_1]..[coordinate_system_6]
// section (G54..G59) giving per-axis work offsets. An axis or motor with no
// matching section keeps NewConfiguration's defaults.
func LoadConfiguration(cfgFile *config.Config) (*Configuration, error) {
	cfg := NewConfiguration()

	for i := axis.Index(0); i < axis.AXES; i++ {
		suffix := strings.ToLower(i.String())

		if sec := cfgFile.GetSectionOptional("axis_" + suffix); sec != nil {
			if err := loadAxisSection(&cfg.Axis[i], sec); err != nil {
				return nil, err
			}
		}
		if sec := cfgFile.GetSectionOptional("motor_" + suffix); sec != nil {
			if err := loadMotorSection(&cfg.Motor[i], sec); err != nil {
				return nil, err
			}
		}
	}

	for cs := G54; cs < numCoordSystems; cs++ {
		sec := cfgFile.GetSectionOptional(coordSystemSectionName(cs))
		if sec == nil {
			continue
		}
		for i := axis.Index(0); i < axis.AXES; i++ {
			off, err := sec.GetFloat("offset_"+strings.ToLower(i.String()), 0)
			if err != nil {
				return nil, err
			}
			cfg.Offset[cs][i] = off
		}
	}

	return cfg, nil
}

func loadAxisSection(ac *AxisConfig, sec *config.Section) error {
	modeStr, err := sec.Get("mode", ac.Mode.String())
	if err != nil {
		return err
	}
	mode, err := parseAxisMode(modeStr)
	if err != nil {
		return config.ErrInvalidValue(sec.GetName(), "mode", modeStr, "disabled, standard, inhibited, or radius")
	}
	ac.Mode = mode

	if ac.FeedrateMax, err = sec.GetFloat("feedrate_max", ac.FeedrateMax); err != nil {
		return err
	}
	if ac.VelocityMax, err = sec.GetFloat("velocity_max", ac.VelocityMax); err != nil {
		return err
	}
	if ac.JerkMax, err = sec.GetFloat("jerk_max", ac.JerkMax); err != nil {
		return err
	}
	if ac.Radius, err = sec.GetFloat("radius", ac.Radius); err != nil {
		return err
	}
	if ac.StepsPerUnit, err = sec.GetFloat("steps_per_unit", ac.StepsPerUnit); err != nil {
		return err
	}
	return nil
}

func loadMotorSection(mc *MotorConfig, sec *config.Section) error {
	var err error
	if mc.Polarity, err = sec.GetBool("polarity", mc.Polarity); err != nil {
		return err
	}
	if mc.Microsteps, err = sec.GetInt("microsteps", mc.Microsteps); err != nil {
		return err
	}
	if mc.PowerMode, err = sec.Get("power_mode", mc.PowerMode); err != nil {
		return err
	}
	if mc.IdleTimeout, err = sec.GetFloat("idle_timeout", mc.IdleTimeout); err != nil {
		return err
	}
	return nil
}

func parseAxisMode(s string) (axis.Mode, error) {
	switch strings.ToLower(s) {
	case "disabled":
		return axis.ModeDisabled, nil
	case "standard":
		return axis.ModeStandard, nil
	case "inhibited":
		return axis.ModeInhibited, nil
	case "radius":
		return axis.ModeRadius, nil
	default:
		return 0, config.ErrInvalidChoice("", "mode", s, []string{"disabled", "standard", "inhibited", "radius"})
	}
}

func coordSystemSectionName(cs CoordSystem) string {
	names := [...]string{"coordinate_system_1", "coordinate_system_2", "coordinate_system_3",
		"coordinate_system_4", "coordinate_system_5", "coordinate_system_6"}
	if int(cs) < 0 || int(cs) >= len(names) {
		return ""
	}
	return names[cs]
}
