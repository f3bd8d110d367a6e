package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Property is the measurement kind requested from the instrument.
// Values are SCPI mnemonics and are sent verbatim.
type Property string

// Supported measurement properties.
const (
	PropertyWavelength Property = "WAVelength"
	PropertyFrequency  Property = "FREQuency"
	PropertyWavenumber Property = "WNUMber"
	PropertyPower      Property = "POWer"
)

var properties = []Property{PropertyWavelength, PropertyFrequency, PropertyWavenumber, PropertyPower}

// ParseProperty accepts a property by its full or short SCPI form, case-insensitively.
// "WAVelength", "wavelength" and "wav" all map to PropertyWavelength.
func ParseProperty(s string) (Property, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	for _, p := range properties {
		full := strings.ToUpper(string(p))
		if in == full || in == shortForm(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown property %q", ErrInvalidConfig, s)
}

// shortForm returns the upper-case prefix of a SCPI mnemonic.
func shortForm(p Property) string {
	s := string(p)
	i := strings.IndexFunc(s, func(r rune) bool { return r >= 'a' && r <= 'z' })
	if i < 0 {
		return s
	}
	return s[:i]
}

// Medium is the propagation medium the instrument corrects for.
type Medium int

const (
	MediumAir Medium = iota
	MediumVacuum
)

// String returns the value sent to the instrument.
func (m Medium) String() string {
	switch m {
	case MediumAir:
		return "air"
	case MediumVacuum:
		return "vacuum"
	default:
		return "unknown"
	}
}

// ParseMedium parses "air" or "vacuum" (case-insensitive, "vac" accepted).
func ParseMedium(s string) (Medium, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "air":
		return MediumAir, nil
	case "vacuum", "vac":
		return MediumVacuum, nil
	default:
		return 0, fmt.Errorf("%w: unknown medium %q", ErrInvalidConfig, s)
	}
}

// ParseSwitch parses an ON/OFF style setting. Accepts on/off, true/false, 1/0.
func ParseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected ON or OFF, got %q", ErrInvalidConfig, s)
	}
}

// InstrumentConfig is the measurement setup applied once at session start.
// Resolution and averaging are forwarded to the instrument without interpretation.
type InstrumentConfig struct {
	Property   Property
	Resolution float64
	Medium     Medium
	Averaging  bool
}

// DefaultInstrumentConfig returns the setup used when nothing is specified.
func DefaultInstrumentConfig() InstrumentConfig {
	return InstrumentConfig{
		Property:   PropertyWavelength,
		Resolution: 0.001,
		Medium:     MediumAir,
		Averaging:  false,
	}
}

// Validate checks the configuration invariants.
func (c InstrumentConfig) Validate() error {
	if _, err := ParseProperty(string(c.Property)); err != nil {
		return err
	}
	if !(c.Resolution > 0) || math.IsInf(c.Resolution, 0) {
		return fmt.Errorf("%w: resolution must be positive and finite, got %v", ErrInvalidConfig, c.Resolution)
	}
	if c.Medium != MediumAir && c.Medium != MediumVacuum {
		return fmt.Errorf("%w: invalid medium %d", ErrInvalidConfig, c.Medium)
	}
	return nil
}

// ResolutionArg formats Resolution for the instrument, e.g. 0.001 -> "0.001".
func (c InstrumentConfig) ResolutionArg() string {
	return strconv.FormatFloat(c.Resolution, 'f', -1, 64)
}

// AveragingArg formats Averaging as "ON" or "OFF".
func (c InstrumentConfig) AveragingArg() string {
	if c.Averaging {
		return "ON"
	}
	return "OFF"
}
