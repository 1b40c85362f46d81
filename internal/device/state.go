package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mode is the fan operating mode.
type Mode string

// Mode values.
const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeManual
}

// Control is the actuator state of the fan.
type Control string

// Control values.
const (
	ControlOn  Control = "on"
	ControlOff Control = "off"
)

// Valid reports whether c is a known control state.
func (c Control) Valid() bool {
	return c == ControlOn || c == ControlOff
}

// Field names a tracked field that commands can set.
type Field string

// Tracked fields.
const (
	FieldMode      Field = "mode"
	FieldControl   Field = "control"
	FieldThreshold Field = "threshold"
)

// Default values at process start.
const (
	DefaultMode      = ModeAuto
	DefaultControl   = ControlOff
	DefaultThreshold = 25.0
)

// State is a snapshot of the fan controller.
type State struct {
	Mode    Mode    `json:"mode"`
	Control Control `json:"control"`

	// Threshold is the temperature setpoint; only meaningful in auto mode.
	Threshold float64 `json:"threshold"`

	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// DefaultState returns the state the aggregate starts with.
func DefaultState() State {
	return State{
		Mode:      DefaultMode,
		Control:   DefaultControl,
		Threshold: DefaultThreshold,
	}
}

// ParseMode parses a mode string exactly.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("mode %q must be %q or %q", s, ModeAuto, ModeManual)
	}
	return m, nil
}

// ParseControl parses a control string exactly.
func ParseControl(s string) (Control, error) {
	c := Control(s)
	if !c.Valid() {
		return "", fmt.Errorf("control %q must be %q or %q", s, ControlOn, ControlOff)
	}
	return c, nil
}

// ParseThreshold parses a decimal threshold. Surrounding whitespace is
// ignored; NaN and infinities are rejected.
func ParseThreshold(s string) (float64, error) {
	t := strings.TrimSpace(s)
	// Decimal only; ParseFloat also takes hex floats like "0x1Ep0".
	if strings.ContainsAny(t, "xX") {
		return 0, fmt.Errorf("threshold %q is not a number", s)
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, fmt.Errorf("threshold %q is not a number", s)
	}
	if err := checkFinite(v); err != nil {
		return 0, err
	}
	return v, nil
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("threshold %v is not finite", v)
	}
	return nil
}

// FormatThreshold renders a threshold in its canonical wire form:
// the shortest decimal that round-trips, without exponent (30 → "30").
func FormatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
