package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

// displayGrace bounds how long teardown waits for display consumers to
// drain before their displays are closed.
const displayGrace = time.Second

// SessionConfig contains configuration for one acquisition session.
type SessionConfig struct {
	Instrument      domain.InstrumentConfig
	Loop            LoopConfig
	DisplayQueue    int
	ShutdownTimeout time.Duration
}

// Resources opens the components a session owns. Each is acquired in
// field order and released in reverse.
type Resources struct {
	// OpenInstrument connects to the instrument. Required.
	OpenInstrument func(ctx context.Context) (ports.Instrument, error)

	// OpenSink creates the sample log. Required.
	OpenSink func() (ports.SampleSink, error)

	// OpenDisplays creates the live views. Optional. A failure here is
	// logged and the session continues with whatever displays were returned.
	OpenDisplays func() ([]ports.Display, error)
}

// Stats summarizes a session.
type Stats struct {
	// Published is the number of samples the sink appended.
	Published int64
	// Failed is the number of ticks that produced no sample.
	Failed int64
	// Dropped is the number of samples displays did not receive.
	Dropped int64
}

// SessionOption configures optional behavior of a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	logger  ports.Logger
	clock   Clock
	emitter EventEmitter
}

// WithLogger sets the session logger.
func WithLogger(logger ports.Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithClock replaces the system clock.
func WithClock(clock Clock) SessionOption {
	return func(o *sessionOptions) {
		o.clock = clock
	}
}

// WithEventEmitter registers a lifecycle observer.
func WithEventEmitter(emitter EventEmitter) SessionOption {
	return func(o *sessionOptions) {
		o.emitter = emitter
	}
}

// Session owns the instrument, the sample log and the displays for one run
// and drives the acquisition loop between them.
type Session struct {
	config    SessionConfig
	resources Resources
	logger    ports.Logger
	clock     Clock
	lifecycle *Lifecycle
	started   atomic.Bool

	mu   sync.RWMutex
	loop *Loop
	out  *fanout
}

// NewSession validates cfg and creates a session in StateIdle.
func NewSession(cfg SessionConfig, resources Resources, opts ...SessionOption) (*Session, error) {
	if err := cfg.Instrument.Validate(); err != nil {
		return nil, err
	}
	if resources.OpenInstrument == nil || resources.OpenSink == nil {
		return nil, fmt.Errorf("%w: instrument and sink are required", domain.ErrInvalidConfig)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	o := sessionOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = ports.NopLogger{}
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}

	return &Session{
		config:    cfg,
		resources: resources,
		logger:    o.logger,
		clock:     o.clock,
		lifecycle: NewLifecycle(o.logger, o.emitter),
	}, nil
}

// Run acquires the session's resources, configures the instrument and
// runs the loop until ctx is canceled, Stop is called, or the sample log
// fails. Resources are released in reverse order of acquisition on every
// path. A requested stop returns nil; setup and log failures are returned.
// Run may be called once.
func (s *Session) Run(ctx context.Context) (err error) {
	if !s.started.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRunning
	}

	var closers closerStack
	defer func() {
		if cerr := closers.closeAll(s.logger); cerr != nil {
			err = errors.Join(err, cerr)
		}
		reason := "stopped"
		if err != nil {
			reason = err.Error()
		}
		_ = s.lifecycle.TransitionTo(StateStopped, reason)
	}()

	instrument, err := s.resources.OpenInstrument(ctx)
	if err != nil {
		s.logger.Error("failed to open instrument", ports.Err(err))
		return err
	}
	closers.push("instrument", instrument.Close)

	if err := instrument.Configure(ctx, s.config.Instrument); err != nil {
		s.logger.Error("failed to configure instrument", ports.Err(err))
		return err
	}
	s.logger.Info("instrument configured",
		ports.String("property", string(s.config.Instrument.Property)),
		ports.Float64("resolution", s.config.Instrument.Resolution),
		ports.String("medium", s.config.Instrument.Medium.String()),
		ports.Bool("averaging", s.config.Instrument.Averaging),
	)

	sink, err := s.resources.OpenSink()
	if err != nil {
		s.logger.Error("failed to open sample log", ports.Err(err))
		return err
	}
	closers.push("sink", sink.Close)

	displays := s.openDisplays()
	for _, d := range displays {
		d := d
		closers.push("display "+d.Name(), func() error {
			if err := closeDisplay(d); err != nil {
				s.logger.Warn("failed to close display",
					ports.String("display", d.Name()),
					ports.Err(err),
				)
			}
			return nil
		})
	}

	if ctx.Err() != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.lifecycle.SetCancel(cancel)

	out := newFanout(displays, s.config.DisplayQueue)
	loop := newLoop(s.config.Loop, instrument, s.clock, s.logger, out)
	s.mu.Lock()
	s.loop, s.out = loop, out
	s.mu.Unlock()

	if err := s.lifecycle.TransitionTo(StateRunning, "instrument configured"); err != nil {
		return err
	}

	for _, q := range out.displays {
		q := q
		s.lifecycle.AddWorker()
		go func() {
			defer s.lifecycle.WorkerDone()
			q.run(s.logger)
		}()
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return out.runSink(sink)
	})
	g.Go(func() error {
		defer out.close()
		return loop.Run(gctx)
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	var runErr error
	select {
	case runErr = <-done:
		_ = s.lifecycle.TransitionTo(StateStopping, "acquisition ended")
	case <-runCtx.Done():
		_ = s.lifecycle.TransitionTo(StateStopping, "stop requested")
		select {
		case runErr = <-done:
		case <-time.After(s.config.ShutdownTimeout):
			runErr = domain.ErrShutdownTimeout
		}
	}

	if len(out.displays) > 0 {
		_ = s.lifecycle.WaitWithTimeout(displayGrace)
	}

	if runErr != nil {
		s.logger.Error("acquisition failed", ports.Err(runErr))
		return runErr
	}

	stats := s.Stats()
	s.logger.Info("acquisition stopped",
		ports.Int64("published", stats.Published),
		ports.Int64("failed_ticks", stats.Failed),
		ports.Int64("display_dropped", stats.Dropped),
	)
	return nil
}

// openDisplays creates the optional displays. Failures are not fatal.
func (s *Session) openDisplays() []ports.Display {
	if s.resources.OpenDisplays == nil {
		return nil
	}
	displays, err := s.resources.OpenDisplays()
	if err != nil {
		s.logger.Warn("display unavailable, continuing without it", ports.Err(err))
	}
	return displays
}

// Stop requests a cooperative stop. The in-flight read, if any, completes
// or times out first. Returns domain.ErrNotRunning if the loop is not running.
func (s *Session) Stop() error {
	if s.lifecycle.State() != StateRunning {
		return domain.ErrNotRunning
	}
	s.lifecycle.Cancel()
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// Stats returns counters for the current or finished run.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	loop, out := s.loop, s.out
	s.mu.RUnlock()

	if loop == nil {
		return Stats{}
	}
	return Stats{
		Published: out.appended(),
		Failed:    loop.Failed(),
		Dropped:   out.dropped(),
	}
}

// closerStack releases resources in reverse order of acquisition.
type closerStack []namedCloser

type namedCloser struct {
	name string
	fn   func() error
}

func (c *closerStack) push(name string, fn func() error) {
	*c = append(*c, namedCloser{name: name, fn: fn})
}

func (c closerStack) closeAll(logger ports.Logger) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].fn(); err != nil {
			logger.Error("failed to release resource",
				ports.String("resource", c[i].name),
				ports.Err(err),
			)
			errs = append(errs, fmt.Errorf("close %s: %w", c[i].name, err))
		}
	}
	return errors.Join(errs...)
}
