package instrument

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotmc/prologix"
	"github.com/tarm/serial"

	"github.com/spectools/wavemeter/internal/domain"
)

// GPIBTransport reaches a GPIB instrument through a Prologix USB-GPIB
// controller attached as a serial port.
type GPIBTransport struct {
	port *serial.Port
	ctrl *prologix.Controller
}

// OpenGPIB opens the controller's serial port and addresses the instrument
// at the given primary address.
func OpenGPIB(port SerialConfig, address int) (*GPIBTransport, error) {
	if address < 0 || address > 30 {
		return nil, fmt.Errorf("%w: GPIB address %d out of range", domain.ErrInvalidConfig, address)
	}
	sp, err := openSerialPort(port)
	if err != nil {
		return nil, err
	}
	ctrl, err := prologix.NewController(sp, address, false)
	if err != nil {
		sp.Close()
		return nil, fmt.Errorf("%w: prologix controller on %s: %v", domain.ErrConnection, port.Device, err)
	}
	return &GPIBTransport{port: sp, ctrl: ctrl}, nil
}

// Write sends a command to the addressed instrument. The controller does not
// take a context; the caller bounds the exchange.
func (t *GPIBTransport) Write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.ctrl.Command(cmd)
}

// Query sends a command and reads the instrument reply.
func (t *GPIBTransport) Query(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply, err := t.ctrl.Query(cmd)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %q: %v", domain.ErrTimeout, cmd, err)
		}
		return "", err
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// Close returns the instrument to front panel control and closes the port.
func (t *GPIBTransport) Close() error {
	localErr := t.ctrl.FrontPanel(true)
	if err := t.port.Close(); err != nil {
		return err
	}
	return localErr
}
