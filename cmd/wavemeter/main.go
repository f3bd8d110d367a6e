package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/spectools/wavemeter"
	"github.com/spectools/wavemeter/internal/cliconfig"
)

const helpDescription = `
Record readings from a wavelength meter to CSV while showing them live.

Readings are requested every --interval and appended to
<output-dir>/<YYYYmmdd_HHMMSS>/wavemeter_readout.csv as they arrive.
Stop with Ctrl-C; the log is complete up to the last reading.

Instruments are addressed by VISA-style resource strings:
  GPIB0::4::INSTR                GPIB address 4 through a Prologix controller on --gpib-port
  ASRL1::INSTR, ASRL/dev/ttyS0   serial port
  TCPIP0::10.0.0.5::5025::SOCKET raw SCPI socket
`

var exampleUsage = strings.TrimSpace(`
  wavemeter -p WAVelength -r 0.0001 -m vacuum -g
  wavemeter --resource TCPIP0::192.168.1.20::23::SOCKET
  wavemeter -d --interval 50ms
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "wavemeter",
		Short:         "Record wavelength meter readings to CSV",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Determine config path
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment overrides the file; changed flags override both
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if _, err := cfg.Validate(); err != nil {
				return err
			}

			log, closer, err := cliconfig.NewLogger(os.Stderr, cliconfig.DefaultLogDir(), cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("open log: %w", err)
			}
			defer closer.Close()

			log.Info().Interface("config", cfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := wavemeter.Run(ctx, cfg,
				wavemeter.WithLogger(log),
				wavemeter.WithConsole(os.Stdout),
			)
			if res.Dir != "" {
				fmt.Printf("\nMeasurement completed.\nData saved to: %s\n", res.Dir)
			}
			if err != nil {
				log.Error().Err(err).Msg("measurement failed")
				return err
			}
			return nil
		},
	}

	// Flags
	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.wavemeter/config.toml)")

	f.BoolVarP(&cfg.Graph, "graph", "g", cfg.Graph, "render a live plot of the readings")
	f.StringVarP(&cfg.Property, "property", "p", cfg.Property, "property to measure (WAVelength, FREQuency, WNUMber, POWer)")
	f.Float64VarP(&cfg.Resolution, "resolution", "r", cfg.Resolution, "display resolution sent to the instrument")
	f.StringVarP(&cfg.Medium, "medium", "m", cfg.Medium, "medium for wavelength correction (air, vacuum)")
	f.StringVarP(&cfg.Averaging, "averaging", "a", cfg.Averaging, "instrument averaging (ON, OFF)")
	f.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "use a synthetic instrument instead of hardware")

	f.StringVar(&cfg.Resource, "resource", cfg.Resource, "instrument resource string")
	f.StringVar(&cfg.GPIBPort, "gpib-port", cfg.GPIBPort, "serial device of the Prologix GPIB controller")
	f.IntVar(&cfg.Baud, "baud", cfg.Baud, "serial baud rate")
	f.DurationVar(&cfg.Interval, "interval", cfg.Interval, "time between readings")
	f.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "maximum wait for one reading")
	f.IntVar(&cfg.WarnAfter, "warn-after", cfg.WarnAfter, "consecutive failed readings before warning")

	f.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for per-run output")
	f.StringVar(&cfg.PlotFile, "plot-file", cfg.PlotFile, "plot image path (default: wavemeter_plot.png in the run directory)")
	f.IntVar(&cfg.PlotPoints, "plot-points", cfg.PlotPoints, "number of readings shown in the plot")
	f.DurationVar(&cfg.PlotRefresh, "plot-refresh", cfg.PlotRefresh, "minimum time between plot renders")

	f.Float64Var(&cfg.SyntheticCenter, "synthetic-center", cfg.SyntheticCenter, "center of synthetic readings (debug)")
	f.Float64Var(&cfg.SyntheticJitter, "synthetic-jitter", cfg.SyntheticJitter, "half-width of synthetic readings (debug)")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed of synthetic readings (debug)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wavemeter:", err)
		return 1
	}
	return 0
}
