// Package wavemeter records readings from a wavelength meter to a CSV log
// while showing them live.
//
// Example usage:
//
//	cfg := wavemeter.DefaultConfig()
//	cfg.Resource = "GPIB0::4::INSTR"
//	cfg.GPIBPort = "/dev/ttyUSB0"
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	res, err := wavemeter.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Data saved to:", res.Dir)
package wavemeter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/spectools/wavemeter/internal/adapters/csvlog"
	"github.com/spectools/wavemeter/internal/adapters/display"
	"github.com/spectools/wavemeter/internal/adapters/instrument"
	logAdapter "github.com/spectools/wavemeter/internal/adapters/log"
	"github.com/spectools/wavemeter/internal/app"
	"github.com/spectools/wavemeter/internal/cliconfig"
	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
	"github.com/spectools/wavemeter/internal/readout"
)

// Config holds the configuration of a measurement run.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// Stats summarizes a finished run.
type Stats = app.Stats

// PlotFileName is the chart written into the run directory when no plot
// file is configured.
const PlotFileName = "wavemeter_plot.png"

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Result describes where a run left its data.
type Result struct {
	// Dir is the run directory. Empty if the run failed before creating it.
	Dir string
	// DataFile is the CSV sample log.
	DataFile string
	// RunID identifies the run in the manifest and logs.
	RunID string
	// Identity is the instrument identification string.
	Identity string
	Stats    Stats
}

// Option configures optional behavior of Run.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	console io.Writer
	now     func() time.Time
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConsole sets where the live status line is printed.
// Without it no status line is shown.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// Run connects to the instrument, configures it and records samples until
// ctx is canceled or an unrecoverable error occurs. Cancellation is a
// normal stop and returns a nil error.
func Run(ctx context.Context, cfg Config, opts ...Option) (Result, error) {
	o := options{logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var res Result
	icfg, err := cfg.Validate()
	if err != nil {
		return res, err
	}
	logger := logAdapter.NewZerolog(o.logger)

	var (
		runDir   readout.RunDir
		manifest readout.Manifest
		haveDir  bool
	)

	resources := app.Resources{
		OpenInstrument: func(ctx context.Context) (ports.Instrument, error) {
			opened, err := instrument.Open(ctx, instrument.OpenOptions{
				Synthetic: cfg.Debug,
				SyntheticConfig: instrument.SyntheticConfig{
					Center: cfg.SyntheticCenter,
					Jitter: cfg.SyntheticJitter,
					Seed:   cfg.Seed,
				},
				Resource:    cfg.Resource,
				GPIBPort:    cfg.GPIBPort,
				Baud:        cfg.Baud,
				Timeout:     cfg.ReadTimeout,
				CheckErrors: true,
				Logger:      logger,
			})
			if err != nil {
				return nil, err
			}
			res.Identity = opened.Identity
			return opened.Instrument, nil
		},
		OpenSink: func() (ports.SampleSink, error) {
			var err error
			runDir, err = readout.NewRunDir(cfg.OutputDir, o.now())
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
			}
			haveDir = true
			res.Dir = runDir.Path
			res.RunID = runDir.ID.String()
			res.DataFile = runDir.File(csvlog.FileName)

			manifest = newManifest(cfg, icfg, runDir, res.Identity)
			if err := readout.WriteManifest(runDir.Path, manifest); err != nil {
				logger.Warn("failed to write run manifest", ports.Err(err))
			}
			logger.Info("run directory created",
				ports.String("run_id", res.RunID),
				ports.String("dir", res.Dir),
			)
			return csvlog.Open(res.DataFile, csvlog.WithLogger(logger))
		},
		OpenDisplays: func() ([]ports.Display, error) {
			return openDisplays(cfg, icfg, o.console, runDir)
		},
	}

	session, err := app.NewSession(app.SessionConfig{
		Instrument: icfg,
		Loop: app.LoopConfig{
			Interval:    cfg.Interval,
			ReadTimeout: cfg.ReadTimeout,
			WarnAfter:   cfg.WarnAfter,
		},
	}, resources, app.WithLogger(logger))
	if err != nil {
		return res, err
	}

	runErr := session.Run(ctx)
	res.Stats = session.Stats()

	if haveDir {
		stopped := o.now()
		manifest.Stopped = &stopped
		manifest.Result = &readout.Result{
			Samples:        res.Stats.Published,
			FailedTicks:    res.Stats.Failed,
			DisplayDropped: res.Stats.Dropped,
		}
		if runErr != nil {
			manifest.Result.Error = runErr.Error()
		}
		if err := readout.WriteManifest(runDir.Path, manifest); err != nil {
			logger.Warn("failed to update run manifest", ports.Err(err))
		}
	}
	return res, runErr
}

func newManifest(cfg Config, icfg domain.InstrumentConfig, dir readout.RunDir, identity string) readout.Manifest {
	m := readout.Manifest{
		RunID:    dir.ID.String(),
		Started:  dir.Started,
		Mode:     "hardware",
		Resource: cfg.Resource,
		Identity: identity,
		DataFile: csvlog.FileName,
		Interval: cfg.Interval.String(),
		Instrument: readout.InstrumentSettings{
			Property:   string(icfg.Property),
			Resolution: icfg.Resolution,
			Medium:     icfg.Medium.String(),
			Averaging:  icfg.Averaging,
		},
	}
	if cfg.Debug {
		m.Mode = "synthetic"
		m.Resource = ""
	}
	return m
}

func openDisplays(cfg Config, icfg domain.InstrumentConfig, console io.Writer, dir readout.RunDir) ([]ports.Display, error) {
	unit := display.Unit(icfg.Property)

	var displays []ports.Display
	if console != nil {
		displays = append(displays, display.NewConsole(console, unit))
	}
	if cfg.Graph {
		path := cfg.PlotFile
		if path == "" {
			path = dir.File(PlotFileName)
		}
		plot, err := display.NewPlot(display.PlotConfig{
			Path:      path,
			MaxPoints: cfg.PlotPoints,
			Refresh:   cfg.PlotRefresh,
			YLabel:    fmt.Sprintf("%s (%s)", icfg.Property, unit),
		})
		if err != nil {
			return displays, err
		}
		displays = append(displays, plot)
	}
	return displays, nil
}
