package instrument

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	logAdapter "github.com/spectools/wavemeter/internal/adapters/log"
	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

// DefaultTimeout bounds every exchange with the instrument.
const DefaultTimeout = 2 * time.Second

// HardwareOption configures optional behavior of Hardware.
type HardwareOption func(*Hardware)

// WithTimeout sets the bound on each command or query.
func WithTimeout(d time.Duration) HardwareOption {
	return func(h *Hardware) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithErrorCheck enables or disables querying :SYSTem:ERRor? after each
// configuration command.
func WithErrorCheck(enabled bool) HardwareOption {
	return func(h *Hardware) {
		h.checkErrors = enabled
	}
}

// WithLogger sets the logger used for configuration traffic.
func WithLogger(logger ports.Logger) HardwareOption {
	return func(h *Hardware) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Hardware is the ports.Instrument backed by a real transport.
type Hardware struct {
	transport   ports.Transport
	timeout     time.Duration
	checkErrors bool
	logger      ports.Logger

	// mu serializes transport access. A query abandoned on timeout keeps
	// holding it until the transport itself gives up.
	mu       sync.Mutex
	property domain.Property
	identity string

	closeOnce sync.Once
	closeErr  error
}

// NewHardware wraps an open transport. The transport is owned by the
// returned Hardware and released by Close.
func NewHardware(transport ports.Transport, opts ...HardwareOption) *Hardware {
	h := &Hardware{
		transport:   transport,
		timeout:     DefaultTimeout,
		checkErrors: true,
		logger:      logAdapter.NewNoop(),
		property:    domain.PropertyWavelength,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Identify queries *IDN? and caches the reply.
func (h *Hardware) Identify(ctx context.Context) (string, error) {
	reply, err := h.exchange(ctx, "*IDN?", true)
	if err != nil {
		return "", fmt.Errorf("%w: identify: %v", domain.ErrConnection, err)
	}
	h.identity = strings.TrimSpace(reply)
	return h.identity, nil
}

// Identity returns the last *IDN? reply, or "" if Identify was never called.
func (h *Hardware) Identity() string {
	return h.identity
}

// Configure sends the setup sequence for cfg.
func (h *Hardware) Configure(ctx context.Context, cfg domain.InstrumentConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigRejected, err)
	}

	h.logger.Info("configuring instrument",
		ports.String("property", string(cfg.Property)),
		ports.String("resolution", cfg.ResolutionArg()),
		ports.String("medium", cfg.Medium.String()),
		ports.String("averaging", cfg.AveragingArg()),
	)
	for _, cmd := range configureCommands(cfg) {
		if _, err := h.exchange(ctx, cmd, false); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrConnection, cmd, err)
		}
		if !h.checkErrors {
			continue
		}
		if err := h.checkError(ctx, cmd); err != nil {
			return err
		}
	}
	h.property = cfg.Property
	h.logger.Info("instrument configured")
	return nil
}

// ReadSample issues :MEASure:<property>? and parses the reply.
// Any failure on this path is reported as transient.
func (h *Hardware) ReadSample(ctx context.Context) (float64, error) {
	cmd := measureCommand(h.property)
	reply, err := h.exchange(ctx, cmd, true)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrTimeout, cmd, err)
	}
	return parseReading(reply)
}

// Close releases the transport. Subsequent calls return the first result.
func (h *Hardware) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.transport.Close()
	})
	return h.closeErr
}

// checkError reads one entry of the instrument error queue.
func (h *Hardware) checkError(ctx context.Context, cmd string) error {
	reply, err := h.exchange(ctx, ":SYSTem:ERRor?", true)
	if err != nil {
		return fmt.Errorf("%w: error query after %s: %v", domain.ErrConnection, cmd, err)
	}
	code, msg, err := parseErrorReply(reply)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrConfigRejected, cmd, err)
	}
	if code != 0 {
		return fmt.Errorf("%w: %s: %d %s", domain.ErrConfigRejected, cmd, code, msg)
	}
	return nil
}

// exchange runs one write or query bounded by h.timeout. The transport call
// runs on its own goroutine so a stuck link cannot hold the caller past the
// deadline.
func (h *Hardware) exchange(ctx context.Context, cmd string, query bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if query {
			reply, err := h.transport.Query(ctx, cmd)
			done <- result{reply, err}
			return
		}
		done <- result{"", h.transport.Write(ctx, cmd)}
	}()

	select {
	case r := <-done:
		return r.reply, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: no reply within %v", domain.ErrTimeout, cmd, h.timeout)
	}
}

func configureCommands(cfg domain.InstrumentConfig) []string {
	return []string{
		":CONFigure:" + string(cfg.Property),
		":DISPlay:RESolution " + cfg.ResolutionArg(),
		":SENSe:AVERage " + cfg.AveragingArg(),
		":SENSe:MEDium " + cfg.Medium.String(),
	}
}

func measureCommand(p domain.Property) string {
	return ":MEASure:" + string(p) + "?"
}

// decimalReading matches SCPI decimal numeric replies (NR1/NR2/NR3).
// strconv alone would also accept NaN, Inf, hex floats and underscores.
var decimalReading = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func parseReading(reply string) (float64, error) {
	s := strings.TrimSpace(reply)
	if !decimalReading.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", domain.ErrParse, reply)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", domain.ErrParse, reply)
	}
	return v, nil
}

// parseErrorReply parses a SCPI error queue entry such as `-224,"Illegal parameter value"`.
func parseErrorReply(reply string) (int, string, error) {
	s := strings.TrimSpace(reply)
	codeText, msg, _ := strings.Cut(s, ",")
	code, err := strconv.Atoi(strings.TrimSpace(codeText))
	if err != nil {
		return 0, "", fmt.Errorf("unreadable error queue reply %q", reply)
	}
	return code, strings.Trim(strings.TrimSpace(msg), `"`), nil
}

var _ ports.Instrument = (*Hardware)(nil)
