package cliconfig

import "os"

// EnvPrefix is the prefix of environment variables read by ApplyEnvConfig.
const EnvPrefix = "WAVEMETER_"

// ApplyEnvConfig applies WAVEMETER_* environment variables to cfg.
// Values override the config file but not explicitly changed flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("property", env("PROPERTY"), &cfg.Property)
	s.setString("medium", env("MEDIUM"), &cfg.Medium)
	s.setString("averaging", env("AVERAGING"), &cfg.Averaging)
	s.setString("resource", env("RESOURCE"), &cfg.Resource)
	s.setString("gpib-port", env("GPIB_PORT"), &cfg.GPIBPort)
	s.setString("output-dir", env("OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("plot-file", env("PLOT_FILE"), &cfg.PlotFile)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("interval", env("INTERVAL"), &cfg.Interval); err != nil {
		return err
	}
	if err := s.setDuration("read-timeout", env("READ_TIMEOUT"), &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("plot-refresh", env("PLOT_REFRESH"), &cfg.PlotRefresh); err != nil {
		return err
	}

	if err := s.setFloatFromString("resolution", env("RESOLUTION"), &cfg.Resolution); err != nil {
		return err
	}
	if err := s.setFloatFromString("synthetic-center", env("SYNTHETIC_CENTER"), &cfg.SyntheticCenter); err != nil {
		return err
	}
	if err := s.setFloatFromString("synthetic-jitter", env("SYNTHETIC_JITTER"), &cfg.SyntheticJitter); err != nil {
		return err
	}

	if err := s.setIntFromString("baud", env("BAUD"), &cfg.Baud); err != nil {
		return err
	}
	if err := s.setIntFromString("warn-after", env("WARN_AFTER"), &cfg.WarnAfter); err != nil {
		return err
	}
	if err := s.setIntFromString("plot-points", env("PLOT_POINTS"), &cfg.PlotPoints); err != nil {
		return err
	}
	if err := s.setUint64FromString("seed", env("SEED"), &cfg.Seed); err != nil {
		return err
	}

	s.setBoolFromString("graph", env("GRAPH"), &cfg.Graph)
	s.setBoolFromString("debug", env("DEBUG"), &cfg.Debug)

	return nil
}
