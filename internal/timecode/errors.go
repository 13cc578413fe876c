package timecode

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidTimecode reports an unparseable or out-of-range timecode.
	ErrInvalidTimecode = errors.New("invalid timecode")
)

// ConfigError describes a configuration value that could not be resolved.
// The caller reports it as a warning and continues with a default.
type ConfigError struct {
	Setting string
	Value   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s value '%s'", e.Setting, e.Value)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
