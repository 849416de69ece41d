package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NetworkTransport writes raw instructions to a printer's TCP port (9100 by default).
// Brother printers do not answer with status frames over this channel.
type NetworkTransport struct {
	host        string
	port        int
	dialTimeout time.Duration
	readTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

func NewNetworkTransport(host string, port int, dialTimeout, readTimeout time.Duration) *NetworkTransport {
	if port == 0 {
		port = DefaultNetworkPort
	}
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if readTimeout <= 0 {
		readTimeout = defaultNetworkReadTimeout
	}

	return &NetworkTransport{host: host, port: port, dialTimeout: dialTimeout, readTimeout: readTimeout}
}

func networkBackend(opts Options) Backend {
	return Backend{
		Kind:     KindNetwork,
		Readback: false,
		Discover: func(context.Context) ([]Device, error) {
			return nil, nil
		},
		New: func(address string) (Transport, error) {
			host, port, err := parseNetworkAddress(address, opts.NetworkPort)
			if err != nil {
				return nil, err
			}

			return NewNetworkTransport(host, port, opts.DialTimeout, opts.NetworkReadTimeout), nil
		},
	}
}

// parseNetworkAddress accepts tcp://host[:port], host:port and bare hosts.
func parseNetworkAddress(address string, defaultPort int) (string, int, error) {
	address = strings.TrimPrefix(strings.TrimSpace(address), "tcp://")
	address = strings.TrimSuffix(address, "/")
	if address == "" {
		return "", 0, errors.New("network address is empty")
	}

	host, rawPort, err := net.SplitHostPort(address)
	if err != nil {
		// No port given.
		return strings.Trim(address, "[]"), defaultPort, nil
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid network port %q", rawPort)
	}

	return host, port, nil
}

func (t *NetworkTransport) Name() string {
	return string(KindNetwork)
}

func (t *NetworkTransport) target() string {
	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func (t *NetworkTransport) DeviceKey() string {
	return "tcp://" + strings.ToLower(t.target())
}

func (t *NetworkTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger(KindNetwork, "target", t.target())

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.host == "" {
		logger.Warn("connect failed: host is empty")

		return errors.New("network host is empty")
	}

	dialer := net.Dialer{Timeout: t.dialTimeout}
	logger.Debug("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", t.target())
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial tcp: %w", err)
	}
	t.conn = conn
	logger.Debug("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *NetworkTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		transportLogger(KindNetwork, "target", t.target()).Warn("close failed", "error", err)
	}

	return err
}

func (t *NetworkTransport) Write(ctx context.Context, payload []byte) error {
	logger := transportLogger(KindNetwork)
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := writeFull(ctx, conn, payload); err != nil {
		logger.Warn("write failed", "len", len(payload), "error", err)

		return fmt.Errorf("write: %w", err)
	}
	logger.Debug("write", "len", len(payload))

	return nil
}

// ReadFrame makes one short read attempt; a timeout yields an empty frame.
func (t *NetworkTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	conn, err := t.currentConn()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(t.readTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, frameReadSize)
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}

		return nil, fmt.Errorf("read: %w", err)
	}

	return buf[:n], nil
}

func (t *NetworkTransport) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}
