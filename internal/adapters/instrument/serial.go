package instrument

import (
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/spectools/wavemeter/internal/domain"
)

// DefaultBaud is used when no baud rate is configured.
const DefaultBaud = 9600

// SerialConfig describes an RS-232 or USB virtual COM port link.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

func openSerialPort(cfg SerialConfig) (*serial.Port, error) {
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrConnection, cfg.Device, err)
	}
	return port, nil
}

// SerialTransport speaks SCPI directly over a serial line.
type SerialTransport struct {
	*lineTransport
	port *serial.Port
}

// OpenSerial opens the serial device described by cfg.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	port, err := openSerialPort(cfg)
	if err != nil {
		return nil, err
	}
	lt := newLineTransport(port, port, "\n")
	lt.discard = port.Flush
	return &SerialTransport{lineTransport: lt, port: port}, nil
}
