package instrument

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spectools/wavemeter/internal/domain"
)

// drainWindow is how long a stale socket is read before the next command.
const drainWindow = 20 * time.Millisecond

// TCPTransport speaks SCPI over a raw socket (conventionally port 5025).
type TCPTransport struct {
	*lineTransport
	conn net.Conn
}

// DialTCP connects to addr ("host:port").
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (*TCPTransport, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrConnection, addr, err)
	}
	lt := newLineTransport(conn, conn, "\n")
	lt.setDeadline = conn.SetDeadline
	lt.discard = func() error { return drain(conn) }
	return &TCPTransport{lineTransport: lt, conn: conn}, nil
}

// drain discards whatever arrives on conn within drainWindow.
func drain(conn net.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
		return err
	}
	_, err := io.Copy(io.Discard, conn)
	if err != nil && !isTimeout(err) {
		return err
	}
	return nil
}
