package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

const (
	// DefaultInterval is the scheduling period of the loop.
	DefaultInterval = 100 * time.Millisecond

	// DefaultReadTimeout bounds a single instrument read.
	DefaultReadTimeout = 2 * time.Second
)

// LoopConfig contains configuration for the acquisition loop.
type LoopConfig struct {
	Interval    time.Duration
	ReadTimeout time.Duration
	WarnAfter   int
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Interval:    DefaultInterval,
		ReadTimeout: DefaultReadTimeout,
		WarnAfter:   DefaultWarnAfter,
	}
}

// Loop reads the instrument once per tick and publishes each sample.
type Loop struct {
	config     LoopConfig
	instrument ports.Instrument
	clock      Clock
	logger     ports.Logger
	out        *fanout
	failures   *failureTracker

	failed atomic.Int64
}

func newLoop(config LoopConfig, instrument ports.Instrument, clock Clock, logger ports.Logger, out *fanout) *Loop {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	return &Loop{
		config:     config,
		instrument: instrument,
		clock:      clock,
		logger:     logger,
		out:        out,
		failures:   newFailureTracker(config.WarnAfter),
	}
}

// Run executes ticks until ctx is canceled or the sink fails.
// A canceled ctx is a normal stop and returns nil. An in-flight read is
// never interrupted by cancellation; it completes or hits its own timeout.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.config.Interval)
	defer ticker.Stop()

	start := l.clock.Now()
	l.logger.Info("acquisition started",
		ports.Duration("interval", l.config.Interval),
		ports.Duration("read_timeout", l.config.ReadTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.out.sinkDone:
			return l.out.sinkError()
		case <-ticker.C():
		}

		if err := l.tick(ctx, start); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// tick performs one read and publishes the result. Read failures are
// counted and logged; only a stopped sink is returned.
func (l *Loop) tick(ctx context.Context, start time.Time) error {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.config.ReadTimeout)
	value, err := l.instrument.ReadSample(readCtx)
	cancel()

	if err != nil {
		l.failed.Add(1)
		consecutive, warn := l.failures.Failure()
		fields := []ports.Field{
			ports.Int("consecutive", consecutive),
			ports.Bool("transient", domain.IsTransient(err)),
			ports.Err(err),
		}
		if warn {
			l.logger.Warn("instrument not responding", fields...)
		} else {
			l.logger.Debug("read failed, skipping tick", fields...)
		}
		return nil
	}

	if n := l.failures.Success(); n > 0 {
		l.logger.Info("instrument recovered", ports.Int("failed_ticks", n))
	}

	sample := domain.NewSample(start, l.clock.Now(), value)
	return l.out.publish(sample)
}

// Failed returns the number of ticks that produced no sample.
func (l *Loop) Failed() int64 {
	return l.failed.Load()
}
