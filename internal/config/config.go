package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/ltcd/internal/timecode"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration. Values come from an optional YAML
// file named by LTCD_CONFIG, then from environment variables.
type Config struct {
	// Server
	Port int `yaml:"port"`

	// Audio clock
	SampleRate int           `yaml:"sample_rate"`
	BlockSize  int           `yaml:"block_size"` // samples per processing block
	Level      float64       `yaml:"level"`      // linear gain of the LTC signal
	Fade       time.Duration `yaml:"fade"`       // start-up gain ramp

	// Timecode
	FrameRate string `yaml:"framerate"` // selector 0-5, fps, or 30df/30nd
	Format    int    `yaml:"format"`    // 0 raw, 1 realtime, 2 frames, 3 milliseconds
	Start     string `yaml:"start"`     // encoder epoch, HH:MM:SS:FF

	// Decoder
	DecodeInput string `yaml:"decode_input"` // loopback, off, or a media file path
	Queue       int    `yaml:"queue"`        // notification queue depth

	MQTT       MQTTConfig `yaml:"mqtt"`
	InstanceID string     `yaml:"instance_id"`
}

// MQTTConfig controls readout publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Encoding string `yaml:"encoding"` // json or msgpack
}

const (
	DecodeLoopback = "loopback"
	DecodeOff      = "off"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:        8080,
		SampleRate:  48000,
		BlockSize:   960,
		Level:       0.5,
		Fade:        200 * time.Millisecond,
		FrameRate:   "30df",
		Format:      0,
		Start:       "01:00:00:00",
		DecodeInput: DecodeLoopback,
		Queue:       64,
		MQTT: MQTTConfig{
			Topic:    "ltc/timecode",
			Encoding: "json",
		},
	}
}

// Load reads configuration from the YAML file in LTCD_CONFIG, if set, then
// applies environment overrides. Unparseable numeric env values keep the
// file or default value.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("LTCD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = envInt("LTCD_PORT", cfg.Port)
	cfg.SampleRate = envInt("LTCD_SAMPLE_RATE", cfg.SampleRate)
	cfg.BlockSize = envInt("LTCD_BLOCK_SIZE", cfg.BlockSize)
	cfg.Level = envFloat("LTCD_LEVEL", cfg.Level)
	cfg.Fade = envDuration("LTCD_FADE", cfg.Fade)
	cfg.FrameRate = envStr("LTCD_FRAMERATE", cfg.FrameRate)
	cfg.Format = envInt("LTCD_FORMAT", cfg.Format)
	cfg.Start = envStr("LTCD_START", cfg.Start)
	cfg.DecodeInput = envStr("LTCD_DECODE_INPUT", cfg.DecodeInput)
	cfg.Queue = envInt("LTCD_QUEUE", cfg.Queue)
	cfg.MQTT.Broker = envStr("LTCD_MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.Topic = envStr("LTCD_MQTT_TOPIC", cfg.MQTT.Topic)
	cfg.MQTT.Encoding = envStr("LTCD_MQTT_ENCODING", cfg.MQTT.Encoding)
	cfg.InstanceID = envStr("LTCD_INSTANCE_ID", cfg.InstanceID)

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with. Frame rate and
// output format are not checked here: invalid values fall back to defaults
// with a warning when they are applied.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", c.SampleRate))
	}
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block size %d must be positive", c.BlockSize))
	}
	if c.Level < 0 || c.Level > 1 {
		errs = append(errs, fmt.Errorf("level %v outside [0, 1]", c.Level))
	}
	if c.Queue <= 0 {
		errs = append(errs, fmt.Errorf("queue depth %d must be positive", c.Queue))
	}
	if _, err := c.StartTimecode(); err != nil {
		errs = append(errs, err)
	}
	switch c.MQTT.Encoding {
	case "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("mqtt encoding %q: want json or msgpack", c.MQTT.Encoding))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FrameRateValue returns the frame-rate setting as a loosely typed value.
func (c Config) FrameRateValue() timecode.ConfigValue {
	return timecode.ParseConfigValue(c.FrameRate)
}

// StartTimecode parses the encoder epoch.
func (c Config) StartTimecode() (timecode.Value, error) {
	v, _, err := timecode.Parse(c.Start)
	if err != nil {
		return timecode.Value{}, fmt.Errorf("start %q: %w", c.Start, err)
	}
	return v, nil
}

// BlockDuration is the wall-clock length of one processing block.
func (c Config) BlockDuration() time.Duration {
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
