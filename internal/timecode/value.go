package timecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction is the playback direction the decoder detected for a frame.
type Direction int8

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Value is one decoded or encoded H:M:S:F timecode.
type Value struct {
	Hours     int
	Minutes   int
	Seconds   int
	Frames    int
	Direction Direction
}

func (v Value) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", v.Hours, v.Minutes, v.Seconds, v.Frames)
}

// Validate checks every field against its range for the given spec.
func (v Value) Validate(spec FrameRateSpec) error {
	switch {
	case v.Hours < 0 || v.Hours > 23,
		v.Minutes < 0 || v.Minutes > 59,
		v.Seconds < 0 || v.Seconds > 59,
		v.Frames < 0 || v.Frames >= spec.NominalFPS():
		return fmt.Errorf("%w: %s at %s", ErrInvalidTimecode, v, spec.Rate)
	}
	if spec.DropFrame && v.Seconds == 0 && v.Frames < 2 && v.Minutes%10 != 0 {
		return fmt.Errorf("%w: %s is a dropped frame number", ErrInvalidTimecode, v)
	}
	return nil
}

const packedValid = 1 << 40

// Pack encodes v into a single word so it can be published through an
// atomic without allocating. The zero word means "no value".
func (v Value) Pack() uint64 {
	return packedValid |
		uint64(uint8(v.Direction))<<32 |
		uint64(uint8(v.Hours))<<24 |
		uint64(uint8(v.Minutes))<<16 |
		uint64(uint8(v.Seconds))<<8 |
		uint64(uint8(v.Frames))
}

// Unpack reverses Pack. ok is false for the zero word.
func Unpack(w uint64) (v Value, ok bool) {
	if w&packedValid == 0 {
		return Value{}, false
	}
	return Value{
		Hours:     int(uint8(w >> 24)),
		Minutes:   int(uint8(w >> 16)),
		Seconds:   int(uint8(w >> 8)),
		Frames:    int(uint8(w)),
		Direction: Direction(uint8(w >> 32)),
	}, true
}

// Parse reads "HH:MM:SS:FF". A ';' or '.' before the frames field is the
// conventional drop-frame notation and is reported through dropFrame.
func Parse(s string) (v Value, dropFrame bool, err error) {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return Value{}, false, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
	}
	sep := strings.LastIndexAny(s, ":;.")
	if sep < 0 {
		return Value{}, false, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
	}
	dropFrame = s[sep] != ':'

	parts := strings.Split(s[:sep], ":")
	if len(parts) != 3 {
		return Value{}, false, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
	}
	fields := make([]int, 0, 4)
	for _, p := range append(parts, s[sep+1:]) {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Value{}, false, fmt.Errorf("%w: %q", ErrInvalidTimecode, s)
		}
		fields = append(fields, n)
	}
	v = Value{Hours: fields[0], Minutes: fields[1], Seconds: fields[2], Frames: fields[3]}
	if v.Hours > 23 || v.Minutes > 59 || v.Seconds > 59 || v.Frames >= framesPerSecond {
		return Value{}, false, fmt.Errorf("%w: %q out of range", ErrInvalidTimecode, s)
	}
	return v, dropFrame, nil
}
