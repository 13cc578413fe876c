package timecode

import (
	"encoding/json"
	"fmt"
	"math"
)

// OutputFormat selects the readout representation.
type OutputFormat int

const (
	FormatRaw OutputFormat = iota
	FormatRealtime
	FormatFrames
	FormatMilliseconds
)

func (f OutputFormat) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatRealtime:
		return "realtime"
	case FormatFrames:
		return "frames"
	case FormatMilliseconds:
		return "milliseconds"
	}
	return fmt.Sprintf("OutputFormat(%d)", int(f))
}

// ParseOutputFormat validates a 0–3 selector. Out-of-range selectors return
// FormatRaw and a *ConfigError.
func ParseOutputFormat(n int) (OutputFormat, error) {
	if n < int(FormatRaw) || n > int(FormatMilliseconds) {
		return FormatRaw, &ConfigError{Setting: "format", Value: fmt.Sprint(n)}
	}
	return OutputFormat(n), nil
}

// The frame-count grid is always 30 frames per second regardless of the
// configured rate. Frames/Milliseconds readouts only make sense together
// with the configured fps.
const (
	framesPerSecond = 30
	framesPerMinute = 60 * framesPerSecond
	framesPerHour   = 60 * framesPerMinute

	droppedPerMinute    = 2
	dfFramesPerMinute   = framesPerMinute - droppedPerMinute
	dfFramesPer10Minute = 10*framesPerMinute - 9*droppedPerMinute
)

// FrameCount returns the total frame index of v on the 30-frame grid,
// removing two frame numbers per minute (except every tenth) when dropFrame
// is set.
func FrameCount(v Value, dropFrame bool) int64 {
	n := int64(framesPerHour*v.Hours + framesPerMinute*v.Minutes + framesPerSecond*v.Seconds + v.Frames)
	if dropFrame {
		totalMinutes := int64(60*v.Hours + v.Minutes)
		n -= droppedPerMinute * (totalMinutes - totalMinutes/10)
	}
	return n
}

// FromFrameCount is the inverse of FrameCount over the valid timecode range.
// Hours wrap at 24.
func FromFrameCount(n int64, dropFrame bool) Value {
	if n < 0 {
		n = 0
	}
	if dropFrame {
		d, m := n/dfFramesPer10Minute, n%dfFramesPer10Minute
		n += 9 * droppedPerMinute * d
		if m > droppedPerMinute {
			n += droppedPerMinute * ((m - droppedPerMinute) / dfFramesPerMinute)
		}
	}
	return Value{
		Hours:   int(n/framesPerHour) % 24,
		Minutes: int(n/framesPerMinute) % 60,
		Seconds: int(n/framesPerSecond) % 60,
		Frames:  int(n % framesPerSecond),
	}
}

// FrameCountToMilliseconds converts a frame count at fps to whole
// milliseconds, rounding half up.
func FrameCountToMilliseconds(n int64, fps float64) int64 {
	if fps <= 0 {
		return 0
	}
	return int64(math.Floor(float64(n)*(1000.0/fps) + 0.5))
}

// Readout is one formatted notification. Which fields are meaningful depends
// on Format; Values returns exactly the tuple for that format.
type Readout struct {
	Format OutputFormat

	// Raw and Realtime.
	Hours   int
	Minutes int
	// Raw only.
	Seconds int
	Frames  int
	// Realtime only, millisecond precision.
	RealSeconds float64
	// Frames or Milliseconds.
	Count int64
}

// Format converts a decoded value into the configured readout.
func Format(v Value, spec FrameRateSpec, f OutputFormat) Readout {
	switch f {
	case FormatFrames:
		return Readout{Format: f, Count: FrameCount(v, spec.DropFrame)}
	case FormatMilliseconds:
		return Readout{Format: f, Count: FrameCountToMilliseconds(FrameCount(v, spec.DropFrame), spec.FPS)}
	case FormatRealtime:
		ms := FrameCountToMilliseconds(FrameCount(v, spec.DropFrame), spec.FPS)
		return Readout{
			Format:      f,
			Hours:       int((ms / 3600000) % 24),
			Minutes:     int((ms / 60000) % 60),
			RealSeconds: math.Floor(math.Mod(float64(ms)/1000, 60)*1000+0.5) / 1000,
		}
	}
	return Readout{
		Format:  FormatRaw,
		Hours:   v.Hours,
		Minutes: v.Minutes,
		Seconds: v.Seconds,
		Frames:  v.Frames,
	}
}

// Values returns the notification tuple: (H,M,S,F), (H,M,seconds), or a
// single count.
func (r Readout) Values() []any {
	switch r.Format {
	case FormatRealtime:
		return []any{r.Hours, r.Minutes, r.RealSeconds}
	case FormatFrames, FormatMilliseconds:
		return []any{r.Count}
	}
	return []any{r.Hours, r.Minutes, r.Seconds, r.Frames}
}

func (r Readout) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values())
}

func (r Readout) String() string {
	switch r.Format {
	case FormatRealtime:
		return fmt.Sprintf("%02d:%02d:%06.3f", r.Hours, r.Minutes, r.RealSeconds)
	case FormatFrames, FormatMilliseconds:
		return fmt.Sprint(r.Count)
	}
	return fmt.Sprintf("%02d:%02d:%02d:%02d", r.Hours, r.Minutes, r.Seconds, r.Frames)
}
