package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/spectools/wavemeter/internal/adapters/instrument"
	"github.com/spectools/wavemeter/internal/domain"
)

const (
	// DefaultResource addresses a wavemeter at GPIB address 4 on board 0.
	DefaultResource = instrument.DefaultResource

	// DefaultOutputDir is where per-run directories are created.
	DefaultOutputDir = "readout"
)

// Config holds CLI configuration for wavemeter.
type Config struct {
	Property   string
	Resolution float64
	Medium     string
	Averaging  string
	Graph      bool
	Debug      bool

	Resource    string
	GPIBPort    string
	Baud        int
	Interval    time.Duration
	ReadTimeout time.Duration
	WarnAfter   int

	OutputDir   string
	PlotFile    string
	PlotPoints  int
	PlotRefresh time.Duration

	SyntheticCenter float64
	SyntheticJitter float64
	Seed            uint64

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Property:        string(domain.PropertyWavelength),
		Resolution:      0.001,
		Medium:          "air",
		Averaging:       "OFF",
		Resource:        DefaultResource,
		GPIBPort:        instrument.DefaultGPIBPort,
		Baud:            instrument.DefaultBaud,
		Interval:        100 * time.Millisecond,
		ReadTimeout:     2 * time.Second,
		WarnAfter:       10,
		OutputDir:       DefaultOutputDir,
		PlotPoints:      500,
		PlotRefresh:     time.Second,
		SyntheticCenter: 550,
		SyntheticJitter: 50,
		Seed:            1,
		LogLevel:        "info",
	}
}

// Validate checks the configuration and returns the instrument settings it
// describes. Property and medium are normalized in place.
func (c *Config) Validate() (domain.InstrumentConfig, error) {
	var ic domain.InstrumentConfig

	property, err := domain.ParseProperty(c.Property)
	if err != nil {
		return ic, err
	}
	medium, err := domain.ParseMedium(c.Medium)
	if err != nil {
		return ic, err
	}
	averaging, err := domain.ParseSwitch(c.Averaging)
	if err != nil {
		return ic, err
	}
	ic = domain.InstrumentConfig{
		Property:   property,
		Resolution: c.Resolution,
		Medium:     medium,
		Averaging:  averaging,
	}
	if err := ic.Validate(); err != nil {
		return domain.InstrumentConfig{}, err
	}
	c.Property = string(property)
	c.Medium = medium.String()

	if c.Interval <= 0 {
		return ic, invalid("interval must be positive")
	}
	if c.ReadTimeout <= 0 {
		return ic, invalid("read timeout must be positive")
	}
	if c.WarnAfter <= 0 {
		return ic, invalid("warn-after must be positive")
	}
	if c.OutputDir == "" {
		return ic, invalid("output-dir is required")
	}
	if !c.Debug {
		if c.Resource == "" {
			return ic, invalid("resource is required")
		}
		if c.Baud <= 0 {
			return ic, invalid("baud must be positive")
		}
	}
	if c.Graph {
		if c.PlotPoints < 2 {
			return ic, invalid("plot-points must be at least 2")
		}
		if c.PlotRefresh <= 0 {
			return ic, invalid("plot-refresh must be positive")
		}
	}
	if c.SyntheticJitter < 0 {
		return ic, invalid("synthetic-jitter must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return ic, fmt.Errorf("%w: log level %q", domain.ErrInvalidConfig, c.LogLevel)
	}

	return ic, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, msg)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setUint64 sets a uint64 value from a pointer if not nil and flag not changed.
func (s *configSetter) setUint64(flag string, value *uint64, dst *uint64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setUint64FromString parses a string to uint64 and sets the destination if valid.
func (s *configSetter) setUint64FromString(flag, value string, dst *uint64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	u, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = u
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
