package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectools/wavemeter/internal/adapters/csvlog"
	"github.com/spectools/wavemeter/internal/adapters/instrument"
	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// manualClock hands out ticks only when the test asks for them.
type manualClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: epoch, ticks: make(chan time.Time)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to epoch+offset.
func (c *manualClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(offset)
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	return manualTicker{c.ticks}
}

// Tick delivers one tick and waits for the loop to accept it.
func (c *manualClock) Tick(t *testing.T) {
	t.Helper()
	select {
	case c.ticks <- c.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not accept tick")
	}
}

type manualTicker struct {
	ch chan time.Time
}

func (m manualTicker) C() <-chan time.Time { return m.ch }
func (m manualTicker) Stop()               {}

// step is one scripted read. The clock is moved to at when the reply arrives.
type step struct {
	at    time.Duration
	value float64
	err   error
}

// scriptedInstrument replays steps in order.
type scriptedInstrument struct {
	clock        *manualClock
	configureErr error
	block        chan struct{}

	mu         sync.Mutex
	steps      []step
	reads      int
	configured bool
	closed     bool
}

func (s *scriptedInstrument) Configure(ctx context.Context, cfg domain.InstrumentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configureErr != nil {
		return s.configureErr
	}
	s.configured = true
	return nil
}

func (s *scriptedInstrument) ReadSample(ctx context.Context) (float64, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reads >= len(s.steps) {
		return 0, domain.ErrTimeout
	}
	st := s.steps[s.reads]
	s.reads++
	s.clock.Set(st.at)
	return st.value, st.err
}

// Release unblocks pending and future reads.
func (s *scriptedInstrument) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block != nil {
		close(s.block)
		s.block = nil
	}
}

func (s *scriptedInstrument) Close() error {
	s.Release()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedInstrument) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// memorySink records appended samples and can fail on a given append.
type memorySink struct {
	failOn int

	mu      sync.Mutex
	samples []domain.Sample
	appends int
	closed  bool
}

func (m *memorySink) Append(s domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.failOn > 0 && m.appends == m.failOn {
		return fmt.Errorf("%w: disk full", domain.ErrIO)
	}
	m.samples = append(m.samples, s)
	return nil
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memorySink) Samples() []domain.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Sample(nil), m.samples...)
}

func (m *memorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// funcDisplay adapts a function to ports.Display.
type funcDisplay struct {
	name    string
	publish func(domain.Sample) error
	close   func() error
}

func (f *funcDisplay) Name() string                  { return f.name }
func (f *funcDisplay) Publish(s domain.Sample) error { return f.publish(s) }
func (f *funcDisplay) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

// orderRecorder logs the order resources are released in.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (o *orderRecorder) add(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.order = append(o.order, name)
}

func (o *orderRecorder) Order() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.order...)
}

type closeHook struct {
	ports.Instrument
	onClose func()
}

func (c closeHook) Close() error {
	c.onClose()
	return c.Instrument.Close()
}

type sinkHook struct {
	ports.SampleSink
	onClose func()
}

func (c sinkHook) Close() error {
	c.onClose()
	return c.SampleSink.Close()
}

// advancingInstrument moves the clock by step on every read.
type advancingInstrument struct {
	ports.Instrument
	clock *manualClock
	step  time.Duration
	reads int
}

func (a *advancingInstrument) ReadSample(ctx context.Context) (float64, error) {
	v, err := a.Instrument.ReadSample(ctx)
	a.reads++
	a.clock.Set(time.Duration(a.reads) * a.step)
	return v, err
}

func testConfig() SessionConfig {
	return SessionConfig{
		Instrument:      domain.DefaultInstrumentConfig(),
		Loop:            DefaultLoopConfig(),
		DisplayQueue:    1,
		ShutdownTimeout: 2 * time.Second,
	}
}

type runResult struct {
	err error
}

// start runs s in the background and returns a channel with its result.
func start(t *testing.T, s *Session, ctx context.Context) <-chan runResult {
	t.Helper()
	done := make(chan runResult, 1)
	go func() {
		done <- runResult{err: s.Run(ctx)}
	}()
	require.Eventually(t, func() bool {
		return s.State() != StateIdle
	}, 2*time.Second, time.Millisecond)
	return done
}

func wait(t *testing.T, done <-chan runResult) error {
	t.Helper()
	select {
	case r := <-done:
		return r.err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

func TestSession_WritesScenarioFile(t *testing.T) {
	clock := newManualClock()
	gen, err := instrument.NewSynthetic(instrument.SyntheticConfig{
		Values: []float64{532.0012, 532.0015, 532.0009},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), csvlog.FileName)
	var sink *csvlog.Sink

	cfg := testConfig()
	cfg.Instrument = domain.InstrumentConfig{
		Property:   domain.PropertyWavelength,
		Resolution: 0.001,
		Medium:     domain.MediumAir,
		Averaging:  false,
	}
	s, err := NewSession(cfg, Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) {
			return &advancingInstrument{Instrument: gen, clock: clock, step: 100 * time.Millisecond}, nil
		},
		OpenSink: func() (ports.SampleSink, error) {
			var err error
			sink, err = csvlog.Open(path)
			return sink, err
		},
	}, WithClock(clock), WithLogger(mockLogger{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(t, s, ctx)

	for i := 0; i < 3; i++ {
		clock.Tick(t)
		require.Eventually(t, func() bool { return sink.Rows() == i+1 }, 2*time.Second, time.Millisecond)
	}

	cancel()
	require.NoError(t, wait(t, done))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Time (s), Wavelength\n0.10, 532.0012\n0.20, 532.0015\n0.30, 532.0009\n", string(data))

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, cfg.Instrument, gen.Config())
	assert.Equal(t, Stats{Published: 3}, s.Stats())
}

func TestSession_TimeoutSkipsTick(t *testing.T) {
	clock := newManualClock()
	inst := &scriptedInstrument{clock: clock, steps: []step{
		{at: 100 * time.Millisecond, value: 532.0012},
		{at: 200 * time.Millisecond, err: fmt.Errorf("%w: no reply", domain.ErrTimeout)},
		{at: 300 * time.Millisecond, value: 532.0011},
		{at: 400 * time.Millisecond, err: fmt.Errorf("%w: \"ERR\"", domain.ErrParse)},
	}}
	sink := &memorySink{}

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return sink, nil },
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(t, s, ctx)

	for i := 0; i < 4; i++ {
		clock.Tick(t)
	}
	require.Eventually(t, func() bool { return s.Stats().Failed == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))

	samples := sink.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, 100*time.Millisecond, samples[0].Elapsed)
	assert.Equal(t, 532.0012, samples[0].Value)
	assert.Equal(t, 300*time.Millisecond, samples[1].Elapsed)
	assert.Equal(t, 532.0011, samples[1].Value)
	assert.Equal(t, int64(2), s.Stats().Published)
}

func TestSession_SinkFailureIsFatal(t *testing.T) {
	clock := newManualClock()
	inst := &scriptedInstrument{clock: clock, steps: []step{
		{at: 100 * time.Millisecond, value: 1},
		{at: 200 * time.Millisecond, value: 2},
		{at: 300 * time.Millisecond, value: 3},
	}}
	sink := &memorySink{failOn: 2}

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return sink, nil },
	}, WithClock(clock))
	require.NoError(t, err)

	done := start(t, s, context.Background())
	clock.Tick(t)
	clock.Tick(t)

	err = wait(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIO)

	samples := sink.Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, float64(1), samples[0].Value)
	assert.Equal(t, int64(1), s.Stats().Published)
	assert.True(t, sink.Closed())
	assert.True(t, inst.Closed())
	assert.Equal(t, StateStopped, s.State())
}

func TestSession_ConfigureFailureSkipsSink(t *testing.T) {
	inst := &scriptedInstrument{
		clock:        newManualClock(),
		configureErr: fmt.Errorf("%w: -222,\"Data out of range\"", domain.ErrConfigRejected),
	}
	sinkOpened := false

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink: func() (ports.SampleSink, error) {
			sinkOpened = true
			return &memorySink{}, nil
		},
	})
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfigRejected)
	assert.False(t, sinkOpened)
	assert.True(t, inst.Closed())
	assert.Equal(t, StateStopped, s.State())
}

func TestSession_ConnectionFailure(t *testing.T) {
	emitter := &mockEmitter{}
	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) {
			return nil, fmt.Errorf("%w: no such device", domain.ErrConnection)
		},
		OpenSink: func() (ports.SampleSink, error) {
			t.Error("sink must not be opened")
			return nil, errors.New("unreachable")
		},
	}, WithEventEmitter(emitter))
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, []State{StateStopped}, emitter.States())
}

func TestSession_ReleasesInReverseOrder(t *testing.T) {
	clock := newManualClock()
	rec := &orderRecorder{}
	inst := &scriptedInstrument{clock: clock}

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) {
			return closeHook{inst, func() { rec.add("instrument") }}, nil
		},
		OpenSink: func() (ports.SampleSink, error) {
			return sinkHook{&memorySink{}, func() { rec.add("sink") }}, nil
		},
		OpenDisplays: func() ([]ports.Display, error) {
			return []ports.Display{&funcDisplay{
				name:    "view",
				publish: func(domain.Sample) error { return nil },
				close:   func() error { rec.add("display"); return nil },
			}}, nil
		},
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, s, ctx)
	cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, []string{"display", "sink", "instrument"}, rec.Order())
}

func TestSession_StopLifecycle(t *testing.T) {
	clock := newManualClock()
	emitter := &mockEmitter{}
	inst := &scriptedInstrument{clock: clock, steps: []step{{at: time.Second, value: 1}}}
	sink := &memorySink{}

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return sink, nil },
	}, WithClock(clock), WithEventEmitter(emitter))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Stop(), domain.ErrNotRunning)

	done := start(t, s, context.Background())
	require.Equal(t, StateRunning, s.State())
	clock.Tick(t)
	require.Eventually(t, func() bool { return len(sink.Samples()) == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, wait(t, done))

	assert.Equal(t, []State{StateRunning, StateStopping, StateStopped}, emitter.States())
	assert.ErrorIs(t, s.Run(context.Background()), domain.ErrAlreadyRunning)
}

func TestSession_StopDuringReadKeepsSample(t *testing.T) {
	clock := newManualClock()
	inst := &scriptedInstrument{
		clock: clock,
		steps: []step{{at: 100 * time.Millisecond, value: 7}},
		block: make(chan struct{}),
	}
	sink := &memorySink{}

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return sink, nil },
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, s, ctx)
	clock.Tick(t)

	// The read is in flight; stopping must not interrupt it.
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateStopping, s.State())

	inst.Release()

	require.NoError(t, wait(t, done))
	require.Len(t, sink.Samples(), 1)
	assert.Equal(t, float64(7), sink.Samples()[0].Value)
}

func TestSession_ShutdownTimeout(t *testing.T) {
	clock := newManualClock()
	inst := &scriptedInstrument{clock: clock, block: make(chan struct{})}

	cfg := testConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond
	s, err := NewSession(cfg, Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return &memorySink{}, nil },
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, s, ctx)
	clock.Tick(t)
	cancel()

	err = wait(t, done)
	assert.ErrorIs(t, err, domain.ErrShutdownTimeout)
	assert.True(t, inst.Closed())
}

func TestSession_SlowDisplayDoesNotBlockLog(t *testing.T) {
	clock := newManualClock()
	inst := &scriptedInstrument{clock: clock, steps: []step{
		{at: 100 * time.Millisecond, value: 1},
		{at: 200 * time.Millisecond, value: 2},
		{at: 300 * time.Millisecond, value: 3},
	}}
	sink := &memorySink{}
	release := make(chan struct{})

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return sink, nil },
		OpenDisplays: func() ([]ports.Display, error) {
			return []ports.Display{&funcDisplay{
				name: "stuck",
				publish: func(domain.Sample) error {
					<-release
					return nil
				},
				close: func() error {
					close(release)
					return nil
				},
			}}, nil
		},
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, s, ctx)
	for i := 0; i < 3; i++ {
		clock.Tick(t)
	}
	require.Eventually(t, func() bool { return len(sink.Samples()) == 3 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Stats().Dropped >= 1 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))
}

func TestSession_FailingDisplaysAreIsolated(t *testing.T) {
	clock := newManualClock()
	inst := &scriptedInstrument{clock: clock, steps: []step{
		{at: 100 * time.Millisecond, value: 1},
		{at: 200 * time.Millisecond, value: 2},
	}}
	sink := &memorySink{}

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return sink, nil },
		OpenDisplays: func() ([]ports.Display, error) {
			return []ports.Display{
				&funcDisplay{name: "panics", publish: func(domain.Sample) error { panic("render") }},
				&funcDisplay{
					name:    "errors",
					publish: func(domain.Sample) error { return errors.New("window closed") },
					close:   func() error { return errors.New("already closed") },
				},
			}, nil
		},
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, s, ctx)
	clock.Tick(t)
	clock.Tick(t)
	require.Eventually(t, func() bool { return len(sink.Samples()) == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, wait(t, done))
}

func TestSession_DisplayOpenFailureContinues(t *testing.T) {
	clock := newManualClock()
	inst := &scriptedInstrument{clock: clock, steps: []step{{at: 100 * time.Millisecond, value: 1}}}
	sink := &memorySink{}

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return inst, nil },
		OpenSink:       func() (ports.SampleSink, error) { return sink, nil },
		OpenDisplays: func() ([]ports.Display, error) {
			return nil, errors.New("no display")
		},
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(t, s, ctx)
	clock.Tick(t)
	require.Eventually(t, func() bool { return len(sink.Samples()) == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, wait(t, done))
}

func TestSession_SyntheticWithoutTransport(t *testing.T) {
	clock := newManualClock()
	values := []float64{500.25, 512.5, 599.75}
	path := filepath.Join(t.TempDir(), csvlog.FileName)
	var sink *csvlog.Sink

	s, err := NewSession(testConfig(), Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) {
			gen, err := instrument.NewSynthetic(instrument.SyntheticConfig{Values: values})
			if err != nil {
				return nil, err
			}
			return &advancingInstrument{Instrument: gen, clock: clock, step: 250 * time.Millisecond}, nil
		},
		OpenSink: func() (ports.SampleSink, error) {
			var err error
			sink, err = csvlog.Open(path, csvlog.WithGuard(false))
			return sink, err
		},
	}, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(t, s, ctx)

	for i := range values {
		clock.Tick(t)
		require.Eventually(t, func() bool { return sink.Rows() == i+1 }, 2*time.Second, time.Millisecond)
	}
	cancel()
	require.NoError(t, wait(t, done))

	samples, err := csvlog.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for i, got := range samples {
		assert.Equal(t, values[i], got.Value)
		assert.Equal(t, time.Duration(i+1)*250*time.Millisecond, got.Elapsed)
	}
}

func TestNewSession_Validation(t *testing.T) {
	ok := Resources{
		OpenInstrument: func(context.Context) (ports.Instrument, error) { return nil, nil },
		OpenSink:       func() (ports.SampleSink, error) { return nil, nil },
	}

	cfg := testConfig()
	cfg.Instrument.Resolution = -1
	_, err := NewSession(cfg, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewSession(testConfig(), Resources{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	s, err := NewSession(testConfig(), ok)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, Stats{}, s.Stats())
}
