package config

import (
	"testing"
)

func TestLoadString(t *testing.T) {
	data := `
[printer]
kinematics: cartesian
max_velocity: 300
max_accel: 3000

[stepper_x]
step_pin: PA5
dir_pin: !PA4
enable_pin: PA3
microsteps: 16
rotation_distance: 40
position_max: 200
`

	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	printer := cfg.GetSectionOptional("printer")
	if printer == nil {
		t.Fatal("expected [printer] section to exist")
	}
	if printer.GetName() != "printer" {
		t.Errorf("expected name 'printer', got '%s'", printer.GetName())
	}

	if cfg.GetSectionOptional("nonexistent") != nil {
		t.Error("expected [nonexistent] section to not exist")
	}

	kin, err := printer.Get("kinematics")
	if err != nil {
		t.Fatalf("Get(kinematics) failed: %v", err)
	}
	if kin != "cartesian" {
		t.Errorf("expected 'cartesian', got '%s'", kin)
	}

	maxVel, err := printer.GetInt("max_velocity")
	if err != nil {
		t.Fatalf("GetInt(max_velocity) failed: %v", err)
	}
	if maxVel != 300 {
		t.Errorf("expected 300, got %d", maxVel)
	}

	maxAccel, err := printer.GetFloat("max_accel")
	if err != nil {
		t.Fatalf("GetFloat(max_accel) failed: %v", err)
	}
	if maxAccel != 3000.0 {
		t.Errorf("expected 3000.0, got %f", maxAccel)
	}
}

func TestSectionGet(t *testing.T) {
	data := `
[test]
string_val: hello
int_val: 42
float_val: 3.14
bool_true: true
bool_false: no
bool_one: 1
`

	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	sec := cfg.GetSectionOptional("test")
	if sec == nil {
		t.Fatal("expected [test] section to exist")
	}

	val, _ := sec.Get("missing", "default")
	if val != "default" {
		t.Errorf("expected 'default', got '%s'", val)
	}

	i, _ := sec.GetInt("int_val")
	if i != 42 {
		t.Errorf("expected 42, got %d", i)
	}

	i, _ = sec.GetInt("missing", 99)
	if i != 99 {
		t.Errorf("expected 99, got %d", i)
	}

	f, _ := sec.GetFloat("float_val")
	if f != 3.14 {
		t.Errorf("expected 3.14, got %f", f)
	}

	b, _ := sec.GetBool("bool_true")
	if !b {
		t.Error("expected true")
	}

	b, _ = sec.GetBool("bool_false")
	if b {
		t.Error("expected false")
	}

	b, _ = sec.GetBool("bool_one")
	if !b {
		t.Error("expected true for '1'")
	}
}

func TestMissingOptionError(t *testing.T) {
	data := `
[test]
exists: value
`

	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	sec := cfg.GetSectionOptional("test")
	if sec == nil {
		t.Fatal("expected [test] section to exist")
	}

	_, err = sec.Get("missing")
	if err == nil {
		t.Error("expected error for missing option")
	}

	configErr, ok := err.(*ConfigError)
	if !ok {
		t.Errorf("expected *ConfigError, got %T", err)
	}
	if configErr.Section != "test" {
		t.Errorf("expected section 'test', got '%s'", configErr.Section)
	}
	if configErr.Option != "missing" {
		t.Errorf("expected option 'missing', got '%s'", configErr.Option)
	}
}

func TestGetInvalidValue(t *testing.T) {
	data := `
[test]
bad_int: notanumber
bad_bool: maybe
`

	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	sec := cfg.GetSectionOptional("test")
	if sec == nil {
		t.Fatal("expected [test] section to exist")
	}

	if _, err := sec.GetInt("bad_int"); err == nil {
		t.Error("expected error for non-numeric int value")
	}
	if _, err := sec.GetBool("bad_bool"); err == nil {
		t.Error("expected error for invalid bool value")
	}
}

func TestRepeatedSectionHeadersMerge(t *testing.T) {
	// Options under a repeated [section] header within a single file
	// merge into the one section.
	data := `
[printer]
kinematics: cartesian

[printer]
max_velocity: 300
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	printer := cfg.GetSectionOptional("printer")
	if printer == nil {
		t.Fatal("expected [printer] section to exist")
	}
	kin, _ := printer.Get("kinematics")
	if kin != "cartesian" {
		t.Errorf("expected 'cartesian', got '%s'", kin)
	}
	v, _ := printer.GetInt("max_velocity")
	if v != 300 {
		t.Errorf("expected 300, got %d", v)
	}
}

func TestSaveConfigPrefixStripped(t *testing.T) {
	data := `
[printer]
kinematics: cartesian
#*# max_velocity: 300
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	printer := cfg.GetSectionOptional("printer")
	if printer == nil {
		t.Fatal("expected [printer] section to exist")
	}
	v, err := printer.GetInt("max_velocity")
	if err != nil {
		t.Fatalf("GetInt(max_velocity) failed: %v", err)
	}
	if v != 300 {
		t.Errorf("expected 300, got %d", v)
	}
}
