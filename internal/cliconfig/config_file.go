package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Property        string  `toml:"property"`
	Resolution      float64 `toml:"resolution"`
	Medium          string  `toml:"medium"`
	Averaging       string  `toml:"averaging"`
	Graph           *bool   `toml:"graph"`
	Debug           *bool   `toml:"debug"`
	Resource        string  `toml:"resource"`
	GPIBPort        string  `toml:"gpib_port"`
	Baud            int     `toml:"baud"`
	Interval        string  `toml:"interval"`
	ReadTimeout     string  `toml:"read_timeout"`
	WarnAfter       int     `toml:"warn_after"`
	OutputDir       string  `toml:"output_dir"`
	PlotFile        string  `toml:"plot_file"`
	PlotPoints      int     `toml:"plot_points"`
	PlotRefresh     string  `toml:"plot_refresh"`
	SyntheticCenter float64 `toml:"synthetic_center"`
	SyntheticJitter float64 `toml:"synthetic_jitter"`
	Seed            *uint64 `toml:"seed"`
	LogLevel        string  `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// HomeDir returns ~/.wavemeter, or "" if the user home directory is unknown.
func HomeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".wavemeter")
	}
	return ""
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.wavemeter/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h := HomeDir(); h != "" {
		return filepath.Join(h, "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("property", fc.Property, &cfg.Property)
	s.setString("medium", fc.Medium, &cfg.Medium)
	s.setString("averaging", fc.Averaging, &cfg.Averaging)
	s.setString("resource", fc.Resource, &cfg.Resource)
	s.setString("gpib-port", fc.GPIBPort, &cfg.GPIBPort)
	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("plot-file", fc.PlotFile, &cfg.PlotFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("interval", fc.Interval, &cfg.Interval); err != nil {
		return err
	}
	if err := s.setDuration("read-timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("plot-refresh", fc.PlotRefresh, &cfg.PlotRefresh); err != nil {
		return err
	}

	s.setFloat("resolution", fc.Resolution, &cfg.Resolution)
	s.setFloat("synthetic-center", fc.SyntheticCenter, &cfg.SyntheticCenter)
	s.setFloat("synthetic-jitter", fc.SyntheticJitter, &cfg.SyntheticJitter)

	s.setInt("baud", fc.Baud, &cfg.Baud)
	s.setInt("warn-after", fc.WarnAfter, &cfg.WarnAfter)
	s.setInt("plot-points", fc.PlotPoints, &cfg.PlotPoints)

	s.setUint64("seed", fc.Seed, &cfg.Seed)

	s.setBool("graph", fc.Graph, &cfg.Graph)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
