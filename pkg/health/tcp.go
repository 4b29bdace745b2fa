package health

import (
	"context"
	"net"
	"strconv"
	"time"
)

// TCPProber probes a node by opening a TCP connection to a port on it
type TCPProber struct {
	// Port to connect to on every node (e.g. 22 for sshd)
	Port int

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPProber creates a new TCP prober
func NewTCPProber(port int) *TCPProber {
	return &TCPProber{
		Port:    port,
		Timeout: 5 * time.Second,
	}
}

// Probe dials node:port
func (t *TCPProber) Probe(ctx context.Context, node string) error {
	dialer := &net.Dialer{
		Timeout: t.Timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(node, strconv.Itoa(t.Port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WithTimeout sets the connection timeout
func (t *TCPProber) WithTimeout(timeout time.Duration) *TCPProber {
	t.Timeout = timeout
	return t
}
