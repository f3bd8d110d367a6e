package instrument

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

// SyntheticConfig describes the generated signal.
type SyntheticConfig struct {
	// Center is the mean reading.
	Center float64

	// Jitter bounds the deviation from Center: readings fall in [Center-Jitter, Center+Jitter].
	Jitter float64

	// Seed makes the sequence reproducible.
	Seed uint64

	// Values, when non-empty, are returned in order and repeated instead of
	// drawing from the generator.
	Values []float64
}

// DefaultSyntheticConfig returns readings uniformly distributed between
// 500 and 600.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{Center: 550, Jitter: 50, Seed: 1}
}

// Synthetic is the ports.Instrument used when no hardware is available.
// It performs no I/O.
type Synthetic struct {
	mu     sync.Mutex
	dist   distuv.Uniform
	values []float64
	next   int
	cfg    domain.InstrumentConfig
	closed bool
}

// NewSynthetic creates a generator for cfg.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Jitter < 0 {
		return nil, fmt.Errorf("%w: synthetic jitter must not be negative", domain.ErrInvalidConfig)
	}
	return &Synthetic{
		dist: distuv.Uniform{
			Min: cfg.Center - cfg.Jitter,
			Max: cfg.Center + cfg.Jitter,
			Src: rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15),
		},
		values: append([]float64(nil), cfg.Values...),
		cfg:    domain.DefaultInstrumentConfig(),
	}, nil
}

// Configure records cfg. Invalid settings are rejected like the hardware would.
func (s *Synthetic) Configure(ctx context.Context, cfg domain.InstrumentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: synthetic instrument closed", domain.ErrConnection)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigRejected, err)
	}
	s.cfg = cfg
	return nil
}

// Config returns the configuration last applied.
func (s *Synthetic) Config() domain.InstrumentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ReadSample returns the next scripted value or a fresh uniform draw.
func (s *Synthetic) ReadSample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("%w: synthetic instrument closed", domain.ErrTimeout)
	}
	if len(s.values) > 0 {
		v := s.values[s.next%len(s.values)]
		s.next++
		return v, nil
	}
	return s.dist.Rand(), nil
}

// Close marks the generator closed. Idempotent.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ ports.Instrument = (*Synthetic)(nil)
