package instrument

import (
	"context"
	"time"

	logAdapter "github.com/spectools/wavemeter/internal/adapters/log"
	"github.com/spectools/wavemeter/internal/ports"
)

// DefaultGPIBPort is the serial device of the Prologix controller.
const DefaultGPIBPort = "/dev/ttyUSB0"

// OpenOptions selects and parameterizes the instrument variant.
type OpenOptions struct {
	// Synthetic selects the generator; no transport is opened.
	Synthetic       bool
	SyntheticConfig SyntheticConfig

	// Resource is a VISA-style resource string, see ParseResource.
	Resource string
	// GPIBPort is the Prologix controller device for GPIB resources.
	GPIBPort string
	// Baud applies to serial and Prologix links.
	Baud int
	// Timeout bounds every exchange.
	Timeout time.Duration
	// CheckErrors queries the instrument error queue after each setting.
	CheckErrors bool

	Logger ports.Logger
}

// Opened is the result of Open.
type Opened struct {
	Instrument ports.Instrument
	// Identity is the *IDN? reply, or "synthetic".
	Identity string
}

// Open constructs the instrument variant selected by opts. For hardware it
// opens the transport and identifies the instrument; on failure nothing is
// left open.
func Open(ctx context.Context, opts OpenOptions) (Opened, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logAdapter.NewNoop()
	}
	if opts.Synthetic {
		s, err := NewSynthetic(opts.SyntheticConfig)
		if err != nil {
			return Opened{}, err
		}
		logger.Info("debug mode: using synthetic instrument",
			ports.Float64("center", opts.SyntheticConfig.Center),
			ports.Float64("jitter", opts.SyntheticConfig.Jitter),
		)
		return Opened{Instrument: s, Identity: "synthetic"}, nil
	}

	res, err := ParseResource(opts.Resource)
	if err != nil {
		return Opened{}, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var transport ports.Transport
	switch res.Kind {
	case ResourceGPIB:
		device := opts.GPIBPort
		if device == "" {
			device = DefaultGPIBPort
		}
		transport, err = OpenGPIB(SerialConfig{Device: device, Baud: opts.Baud, ReadTimeout: timeout}, res.Address)
	case ResourceSerial:
		transport, err = OpenSerial(SerialConfig{Device: res.Device, Baud: opts.Baud, ReadTimeout: timeout})
	case ResourceTCP:
		transport, err = DialTCP(ctx, res.Addr, timeout)
	}
	if err != nil {
		return Opened{}, err
	}

	hw := NewHardware(transport,
		WithTimeout(timeout),
		WithErrorCheck(opts.CheckErrors),
		WithLogger(logger),
	)
	idn, err := hw.Identify(ctx)
	if err != nil {
		_ = hw.Close()
		return Opened{}, err
	}
	logger.Info("connected to instrument",
		ports.String("resource", res.Raw),
		ports.String("transport", res.Kind.String()),
		ports.String("idn", idn),
	)
	return Opened{Instrument: hw, Identity: idn}, nil
}
