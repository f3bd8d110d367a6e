package instrument

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spectools/wavemeter/internal/domain"
)

// DefaultResource is the wavemeter's address on the lab GPIB bus.
const DefaultResource = "GPIB0::4::INSTR"

// ResourceKind identifies the transport behind a resource string.
type ResourceKind int

const (
	ResourceGPIB ResourceKind = iota
	ResourceSerial
	ResourceTCP
)

// String returns the VISA interface type name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceGPIB:
		return "GPIB"
	case ResourceSerial:
		return "ASRL"
	case ResourceTCP:
		return "TCPIP"
	default:
		return "unknown"
	}
}

// Resource is a parsed VISA-style resource string.
type Resource struct {
	Kind ResourceKind
	Raw  string

	// GPIB
	Board   int
	Address int

	// Serial
	Device string

	// TCP, "host:port"
	Addr string
}

// ParseResource understands the subset of VISA resource strings this tool
// can reach:
//
//	GPIB[board]::<primary address>[::INSTR]
//	ASRL<device path or port number>[::INSTR]
//	TCPIP[board]::<host>::<port>::SOCKET
func ParseResource(s string) (Resource, error) {
	raw := strings.TrimSpace(s)
	parts := strings.Split(raw, "::")
	head := strings.ToUpper(parts[0])
	bad := func(why string) (Resource, error) {
		return Resource{}, fmt.Errorf("%w: resource %q: %s", domain.ErrInvalidConfig, s, why)
	}

	switch {
	case strings.HasPrefix(head, "GPIB"):
		if len(parts) < 2 || len(parts) > 3 {
			return bad("expected GPIB[board]::address[::INSTR]")
		}
		board, err := boardNumber(head[len("GPIB"):])
		if err != nil {
			return bad(err.Error())
		}
		addr, err := strconv.Atoi(parts[1])
		if err != nil || addr < 0 || addr > 30 {
			return bad("GPIB address must be 0-30")
		}
		if len(parts) == 3 && !strings.EqualFold(parts[2], "INSTR") {
			return bad("GPIB resources must end in INSTR")
		}
		return Resource{Kind: ResourceGPIB, Raw: raw, Board: board, Address: addr}, nil

	case strings.HasPrefix(head, "ASRL"):
		if len(parts) > 2 || (len(parts) == 2 && !strings.EqualFold(parts[1], "INSTR")) {
			return bad("expected ASRL<device>[::INSTR]")
		}
		dev := parts[0][len("ASRL"):]
		if dev == "" {
			return bad("missing serial device")
		}
		if n, err := strconv.Atoi(dev); err == nil {
			if n < 1 {
				return bad("serial port numbers start at 1")
			}
			dev = fmt.Sprintf("/dev/ttyS%d", n-1)
		}
		return Resource{Kind: ResourceSerial, Raw: raw, Device: dev}, nil

	case strings.HasPrefix(head, "TCPIP"):
		if len(parts) != 4 || !strings.EqualFold(parts[3], "SOCKET") {
			return bad("expected TCPIP[board]::host::port::SOCKET")
		}
		board, err := boardNumber(head[len("TCPIP"):])
		if err != nil {
			return bad(err.Error())
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil || port <= 0 || port > 65535 {
			return bad("invalid port")
		}
		if parts[1] == "" {
			return bad("missing host")
		}
		return Resource{Kind: ResourceTCP, Raw: raw, Board: board, Addr: net.JoinHostPort(parts[1], parts[2])}, nil
	}
	return bad("unsupported interface type")
}

func boardNumber(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid board number %q", s)
	}
	return n, nil
}
