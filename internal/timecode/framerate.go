// Package timecode holds the SMPTE timecode model shared by the LTC encoder
// and decoder: frame-rate resolution, timecode values, and the frame-count
// arithmetic behind the readout formats.
package timecode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FrameRate is the enumerated frame-rate selector. The numeric values are the
// integer selectors accepted from configuration (0–5).
type FrameRate int

const (
	Rate23976 FrameRate = iota
	Rate24
	Rate25
	Rate30DropFrame
	Rate30NonDrop
	Rate30
)

// DefaultFrameRate is used whenever a configured value cannot be resolved.
const DefaultFrameRate = Rate30DropFrame

var frameRateNames = [...]string{
	Rate23976:       "23.976",
	Rate24:          "24",
	Rate25:          "25",
	Rate30DropFrame: "30df",
	Rate30NonDrop:   "30nd",
	Rate30:          "30",
}

func (r FrameRate) String() string {
	if r < 0 || int(r) >= len(frameRateNames) {
		return fmt.Sprintf("FrameRate(%d)", int(r))
	}
	return frameRateNames[r]
}

// Standard is the broadcast standard the codec engine shapes its signal for.
// Values match the engine's TV standard enumeration.
type Standard int

const (
	TV525_60 Standard = iota
	TV625_50
	TV1125_60
	Film24
)

func (s Standard) String() string {
	switch s {
	case TV525_60:
		return "525/60"
	case TV625_50:
		return "625/50"
	case TV1125_60:
		return "1125/60"
	case Film24:
		return "film"
	}
	return fmt.Sprintf("Standard(%d)", int(s))
}

// FrameRateSpec is the canonical, resolved frame-rate configuration. It is
// replaced wholesale on reconfiguration.
type FrameRateSpec struct {
	Rate      FrameRate
	FPS       float64
	Standard  Standard
	DropFrame bool
}

// Spec returns the canonical spec for r. Unknown selectors map to the default.
func (r FrameRate) Spec() FrameRateSpec {
	switch r {
	case Rate23976:
		return FrameRateSpec{Rate: r, FPS: 24 / 1.001, Standard: Film24}
	case Rate24:
		return FrameRateSpec{Rate: r, FPS: 24, Standard: Film24}
	case Rate25:
		return FrameRateSpec{Rate: r, FPS: 25, Standard: TV625_50}
	case Rate30DropFrame:
		return FrameRateSpec{Rate: r, FPS: 30 / 1.001, Standard: TV525_60, DropFrame: true}
	case Rate30NonDrop:
		return FrameRateSpec{Rate: r, FPS: 30 / 1.001, Standard: TV525_60}
	case Rate30:
		return FrameRateSpec{Rate: r, FPS: 30, Standard: TV525_60}
	}
	return DefaultFrameRate.Spec()
}

// NominalFPS is the integer frame count per second, used to bound the frames field.
func (s FrameRateSpec) NominalFPS() int {
	return int(math.Ceil(s.FPS))
}

func (s FrameRateSpec) String() string {
	return fmt.Sprintf("%s (%.3f fps, %s)", s.Rate, s.FPS, s.Standard)
}

// Kind tags the shape of a ConfigValue.
type Kind int

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindText
)

// ConfigValue is a frame-rate setting of unknown shape: an integer selector,
// a floating-point rate, or a short text tag.
type ConfigValue struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(v int64) ConfigValue     { return ConfigValue{kind: KindInt, i: v} }
func Float(v float64) ConfigValue { return ConfigValue{kind: KindFloat, f: v} }
func Text(v string) ConfigValue   { return ConfigValue{kind: KindText, s: v} }

// ParseConfigValue classifies a textual setting such as an environment
// variable: integers first, then floats, otherwise a text tag.
func ParseConfigValue(raw string) ConfigValue {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ConfigValue{}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Float(f)
	}
	return Text(raw)
}

func (v ConfigValue) Kind() Kind { return v.kind }

func (v ConfigValue) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	}
	if v.s != "" {
		return v.s
	}
	return "<none>"
}

// UnmarshalJSON accepts a JSON number or string. Any other shape (arrays,
// objects, booleans) decodes to a KindNone value that fails resolution.
func (v *ConfigValue) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode framerate: %w", err)
	}
	switch x := raw.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			*v = Int(n)
			return nil
		}
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("decode framerate: %w", err)
		}
		*v = Float(f)
	case string:
		*v = Text(x)
	default:
		*v = ConfigValue{s: string(b)}
	}
	return nil
}

func (v ConfigValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	}
	return []byte("null"), nil
}

const rateTolerance = 1e-3

func near(a, b float64) bool { return math.Abs(a-b) < rateTolerance }

// Resolve maps a configuration value to a canonical FrameRateSpec. On failure
// it returns the default spec together with a *ConfigError, so callers can
// warn and keep running.
func Resolve(v ConfigValue) (FrameRateSpec, error) {
	rate, ok := resolveRate(v)
	if !ok {
		return DefaultFrameRate.Spec(), &ConfigError{Setting: "framerate", Value: v.String()}
	}
	return rate.Spec(), nil
}

func resolveRate(v ConfigValue) (FrameRate, bool) {
	switch v.kind {
	case KindInt:
		if v.i >= int64(Rate23976) && v.i <= int64(Rate30) {
			return FrameRate(v.i), true
		}
		return rateFromInteger(v.i)
	case KindFloat:
		switch {
		case near(v.f, 23.97) || near(v.f, 24/1.001):
			return Rate23976, true
		case near(v.f, 29.97) || near(v.f, 30/1.001):
			return Rate30DropFrame, true
		}
		return rateFromInteger(int64(v.f))
	case KindText:
		switch {
		case strings.EqualFold(v.s, "30df"):
			return Rate30DropFrame, true
		case strings.EqualFold(v.s, "30nd"):
			return Rate30NonDrop, true
		}
	}
	return 0, false
}

func rateFromInteger(n int64) (FrameRate, bool) {
	switch n {
	case 24:
		return Rate24, true
	case 25:
		return Rate25, true
	case 30:
		return Rate30, true
	}
	return 0, false
}
