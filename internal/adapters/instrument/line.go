package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spectools/wavemeter/internal/domain"
)

// lineTransport speaks newline-terminated SCPI over any byte stream.
// Serial and TCP transports are built on it.
type lineTransport struct {
	rw     io.ReadWriter
	closer io.Closer
	r      *bufio.Reader
	term   string

	// setDeadline is nil for streams without deadline support.
	setDeadline func(time.Time) error
	// discard drops unread input after a timeout so a late reply is not
	// taken as the answer to the next query. May be nil.
	discard func() error
	stale   bool
}

func newLineTransport(rw io.ReadWriter, closer io.Closer, term string) *lineTransport {
	return &lineTransport{
		rw:     rw,
		closer: closer,
		r:      bufio.NewReader(rw),
		term:   term,
	}
}

func (t *lineTransport) Write(ctx context.Context, cmd string) error {
	if err := t.prepare(ctx); err != nil {
		return err
	}
	if _, err := io.WriteString(t.rw, cmd+t.term); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

func (t *lineTransport) Query(ctx context.Context, cmd string) (string, error) {
	if err := t.Write(ctx, cmd); err != nil {
		return "", err
	}
	line, err := t.r.ReadString('\n')
	if err != nil {
		t.stale = true
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %q: %v", domain.ErrTimeout, cmd, err)
		}
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *lineTransport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// prepare clears input left by an abandoned query, then applies the
// context deadline.
func (t *lineTransport) prepare(ctx context.Context) error {
	if t.stale {
		if t.discard != nil {
			if err := t.discard(); err != nil {
				return fmt.Errorf("discard stale input: %w", err)
			}
		}
		t.r.Reset(t.rw)
		t.stale = false
	}
	if t.setDeadline != nil {
		deadline, _ := ctx.Deadline()
		if err := t.setDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}
	return nil
}

// isTimeout reports read errors that mean "no reply yet". A serial port with
// a read timeout reports io.EOF when nothing arrives.
func isTimeout(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.ErrNoProgress) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
