package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scrivener-audio/bartleby/internal/hw"
)

// Config holds every tunable of the translation engine. The defaults match
// the reference hardware; the ADC range and velocity curve are expected to
// be recalibrated per build.
type Config struct {
	// ADCMax is the full-scale ADC reading (12-bit converter by default).
	ADCMax uint16 `json:"adcMax,omitempty"`

	// Key detection thresholds, in raw ADC counts. ThresholdOff must stay
	// below ThresholdOn to give the keybed hysteresis.
	ThresholdOn  uint16 `json:"thresholdOn,omitempty"`
	ThresholdOff uint16 `json:"thresholdOff,omitempty"`

	// VelocityScale maps the A->B crossing interval to velocity:
	// v = VelocityScale / dt_ms, clamped to [1,127].
	VelocityScale float64 `json:"velocityScale,omitempty"`
	// VelocityCeilingMs is the slowest press that still derives velocity
	// from timing; anything slower gets DefaultVelocity.
	VelocityCeilingMs float64 `json:"velocityCeilingMs,omitempty"`
	DefaultVelocity   uint8   `json:"defaultVelocity,omitempty"`
	// AbortWindowMs bounds how long a key may sit in Rising before an
	// aborted press is discarded.
	AbortWindowMs float64 `json:"abortWindowMs,omitempty"`

	// PressureDeadband is the minimum 7-bit pressure change re-emitted
	// while a key is held.
	PressureDeadband uint8 `json:"pressureDeadband,omitempty"`
	// BendDeadband is the minimum 14-bit pitch bend change re-emitted.
	BendDeadband uint16 `json:"bendDeadband,omitempty"`

	// Pot processing.
	PotAlpha     float64 `json:"potAlpha,omitempty"`
	PotDeadband  uint8   `json:"potDeadband,omitempty"`
	PotLowerTrim float64 `json:"potLowerTrim,omitempty"`
	PotUpperTrim float64 `json:"potUpperTrim,omitempty"`

	// PotCC maps each pot to the controller it emits on the manager channel.
	PotCC [hw.NumPots]uint8 `json:"potCC,omitempty"`

	// OctaveRange clamps the encoder's octave offset to [-OctaveRange, +OctaveRange].
	OctaveRange int `json:"octaveRange,omitempty"`

	// Greeting enables the boot chime.
	Greeting bool `json:"greeting,omitempty"`
}

// DefaultPotCC is the factory pot->controller table: timbre, filter and
// envelope controls on the first pots, general-purpose controllers on the
// rest.
var DefaultPotCC = [hw.NumPots]uint8{74, 71, 73, 75, 76, 72, 7, 1, 20, 21, 22, 23, 24, 25}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ADCMax:            4095,
		ThresholdOn:       410, // ~10% of full scale
		ThresholdOff:      205, // ~5% of full scale
		VelocityScale:     200,
		VelocityCeilingMs: 100,
		DefaultVelocity:   64,
		AbortWindowMs:     250,
		PressureDeadband:  2,
		BendDeadband:      128,
		PotAlpha:          0.5,
		PotDeadband:       1,
		PotLowerTrim:      0.02,
		PotUpperTrim:      0.02,
		PotCC:             DefaultPotCC,
		OctaveRange:       3,
	}
}

// Load reads the config from disk, or returns defaults if the file does
// not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configs the engines cannot run with.
func (c *Config) Validate() error {
	if c.ADCMax == 0 {
		return fmt.Errorf("adcMax must be positive")
	}
	if c.ThresholdOff >= c.ThresholdOn {
		return fmt.Errorf("thresholdOff (%d) must be below thresholdOn (%d)", c.ThresholdOff, c.ThresholdOn)
	}
	if c.ThresholdOn > c.ADCMax {
		return fmt.Errorf("thresholdOn (%d) exceeds adcMax (%d)", c.ThresholdOn, c.ADCMax)
	}
	if c.VelocityScale <= 0 {
		return fmt.Errorf("velocityScale must be positive")
	}
	if c.PotAlpha <= 0 || c.PotAlpha > 1 {
		return fmt.Errorf("potAlpha must be in (0,1]")
	}
	if c.OctaveRange < 0 {
		return fmt.Errorf("octaveRange must not be negative")
	}
	for i, cc := range c.PotCC {
		if cc > 127 {
			return fmt.Errorf("pot %d mapped to invalid controller %d", i, cc)
		}
	}
	return nil
}
