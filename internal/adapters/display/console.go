// Package display provides live views of the sample stream.
//
// Displays are best-effort: they run on their own goroutine behind a
// bounded queue and their errors are logged, never propagated into
// acquisition.
package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/spectools/wavemeter/internal/domain"
	"github.com/spectools/wavemeter/internal/ports"
)

// Console rewrites a single terminal status line for every sample.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	unit    string
	printed bool
}

// NewConsole writes status lines to out. unit is appended to the value.
func NewConsole(out io.Writer, unit string) *Console {
	return &Console{out: out, unit: unit}
}

// Name implements ports.Display.
func (c *Console) Name() string { return "console" }

// Publish overwrites the status line with s.
func (c *Console) Publish(s domain.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printed = true
	_, err := fmt.Fprintf(c.out, "\rTime: %.2f s, Wavelength: %.6f %s", s.ElapsedSeconds(), s.Value, c.unit)
	return err
}

// Close ends the status line.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.printed {
		return nil
	}
	c.printed = false
	_, err := fmt.Fprintln(c.out)
	return err
}

// Unit returns the display unit for a measured property.
func Unit(p domain.Property) string {
	switch p {
	case domain.PropertyFrequency:
		return "THz"
	case domain.PropertyWavenumber:
		return "cm-1"
	case domain.PropertyPower:
		return "mW"
	default:
		return "nm"
	}
}

var _ ports.Display = (*Console)(nil)
