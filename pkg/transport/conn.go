package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/odo-protocol/odo-go/pkg/log"
	"github.com/odo-protocol/odo-go/pkg/wire"
)

// Framing constants.
const (
	// MaxHeaderSize bounds accumulated header content in bytes.
	MaxHeaderSize = 1024

	// DefaultMaxBodySize is the default maximum message body size (64 KB).
	DefaultMaxBodySize = 65536

	// MaxLogBodySize is the maximum body size to include in log events (4 KB).
	// Larger bodies are truncated in log events to avoid excessive memory usage.
	MaxLogBodySize = 4096
)

// Transport errors.
var (
	// ErrConnectFailure indicates the connection could not be established.
	ErrConnectFailure = errors.New("connect failure")

	// ErrHeaderTooLarge indicates accumulated header content exceeded MaxHeaderSize.
	ErrHeaderTooLarge = errors.New("message header too large")

	// ErrMalformedHeader indicates required header fields could not be parsed.
	ErrMalformedHeader = wire.ErrMalformedHeader

	// ErrIoFailure indicates a read or write on the underlying stream failed.
	ErrIoFailure = errors.New("transport i/o failure")

	// ErrShortWrite indicates fewer bytes were written than requested.
	// Short writes are fatal; the connection is closed and never retried.
	ErrShortWrite = errors.New("short write")

	// ErrBodyTooLarge indicates the announced body length exceeds the limit.
	ErrBodyTooLarge = errors.New("message body too large")
)

// Role selects which header form a Conn sends.
type Role int

const (
	// RoleClient sends request-form headers (device side).
	RoleClient Role = iota

	// RoleServer sends response-form headers (manufacturer side).
	RoleServer
)

// Config configures a Conn.
type Config struct {
	// TLSConfig enables TLS when non-nil (client side).
	TLSConfig *tls.Config

	// MaxBodySize bounds announced body lengths (default 64 KB).
	MaxBodySize int

	// DialTimeout bounds connection establishment (0 = context only).
	DialTimeout time.Duration

	// Logger receives frame events (optional).
	Logger log.Logger

	// SessionID tags log events (optional).
	SessionID string
}

// Conn is a framed ODO transport connection. It is owned by a single
// session; methods must not be called concurrently.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	role Role

	maxBodySize int
	logger      log.Logger
	sessionID   string

	closeOnce sync.Once
	closeErr  error
}

// Connect resolves host, dials the first reachable address on port and,
// when cfg.TLSConfig is set, performs a TLS client handshake. It never
// returns a partially-established connection: on handshake failure the
// socket is closed before the error is returned.
func Connect(ctx context.Context, host string, port uint16, cfg Config) (*Conn, error) {
	addrs, err := ResolveHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailure, err)
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	var conn net.Conn
	var dialErr error
	for _, ip := range addrs {
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
		conn, dialErr = dialer.DialContext(ctx, "tcp", addr)
		if dialErr == nil {
			break
		}
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", ErrConnectFailure, host, port, dialErr)
	}

	if cfg.TLSConfig != nil {
		tlsConn := tls.Client(conn, cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: TLS handshake: %v", ErrConnectFailure, err)
		}
		conn = tlsConn
	}

	return NewConn(conn, RoleClient, cfg), nil
}

// NewConn wraps an established stream in a framed connection.
// Used for accepted server connections and for tests over net.Pipe.
func NewConn(conn net.Conn, role Role, cfg Config) *Conn {
	maxBody := cfg.MaxBodySize
	if maxBody == 0 {
		maxBody = DefaultMaxBodySize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Conn{
		conn:        conn,
		r:           bufio.NewReader(conn),
		role:        role,
		maxBodySize: maxBody,
		logger:      logger,
		sessionID:   cfg.SessionID,
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// TLSConnectionState returns the TLS state when the stream is TLS-wrapped.
func (c *Conn) TLSConnectionState() (tls.ConnectionState, bool) {
	if tc, ok := c.conn.(*tls.Conn); ok {
		return tc.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// readLine reads a newline-terminated line, stripping the trailing '\n' and
// an optional preceding '\r'. The line length is bounded by MaxHeaderSize.
func (c *Conn) readLine() (string, error) {
	buf := make([]byte, 0, 64)
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrIoFailure, err)
		}
		if b == '\n' {
			break
		}
		if len(buf) >= MaxHeaderSize {
			return "", ErrHeaderTooLarge
		}
		buf = append(buf, b)
	}
	if n := len(buf); n > 0 && buf[n-1] == '\r' {
		buf = buf[:n-1]
	}
	return string(buf), nil
}

// RecvHeader reads header lines until the blank separator line, accumulating
// into a bounded buffer, then parses protocol version, message type and body
// length from the accumulated content.
func (c *Conn) RecvHeader() (protVer, msgType uint32, bodyLen int, err error) {
	var hdr []byte
	for {
		line, err := c.readLine()
		if err != nil {
			return 0, 0, 0, err
		}
		if line == "" {
			break // end of header
		}
		// accumulate header content, '\n' separated for parsing
		if len(hdr)+len(line)+1 > MaxHeaderSize {
			return 0, 0, 0, ErrHeaderTooLarge
		}
		if len(hdr) > 0 {
			hdr = append(hdr, '\n')
		}
		hdr = append(hdr, line...)
	}

	protVer, msgType, bodyLen, err = wire.ParseHeader(string(hdr))
	if err != nil {
		return 0, 0, 0, err
	}
	if bodyLen > c.maxBodySize {
		return 0, 0, 0, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, bodyLen, c.maxBodySize)
	}
	return protVer, msgType, bodyLen, nil
}

// RecvBody reads exactly length bytes, retrying partial reads. A read error
// before length bytes have been collected is fatal.
func (c *Conn) RecvBody(length int) ([]byte, error) {
	if length < 0 || length > c.maxBodySize {
		return nil, fmt.Errorf("%w: %d", ErrBodyTooLarge, length)
	}

	buf := make([]byte, length)
	read := 0
	for read < length {
		n, err := c.r.Read(buf[read:])
		read += n
		// A read may deliver the final bytes together with an error
		// such as io.EOF. Only short delivery is fatal.
		if err != nil && read < length {
			return nil, fmt.Errorf("%w: body read after %d/%d bytes: %v",
				ErrIoFailure, read, length, err)
		}
	}

	return buf, nil
}

// RecvMessage reads one full framed message (header then body).
func (c *Conn) RecvMessage() (protVer, msgType uint32, body []byte, err error) {
	protVer, msgType, bodyLen, err := c.RecvHeader()
	if err != nil {
		return 0, 0, nil, err
	}
	body, err = c.RecvBody(bodyLen)
	if err != nil {
		return 0, 0, nil, err
	}
	c.logFrame(log.DirectionIn, protVer, msgType, body)
	return protVer, msgType, body, nil
}

// Send constructs a header for the body and writes header then body.
// A short write is fatal: the connection is closed and the error returned.
// Returns the number of body bytes written.
func (c *Conn) Send(protVer, msgType uint32, body []byte) (int, error) {
	if len(body) > c.maxBodySize {
		return 0, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, len(body), c.maxBodySize)
	}

	var hdr []byte
	if c.role == RoleServer {
		hdr = wire.ConstructResponseHeader(protVer, msgType, len(body))
	} else {
		hdr = wire.ConstructHeader(protVer, msgType, len(body))
	}

	if err := c.writeFull(hdr); err != nil {
		c.Close()
		return 0, fmt.Errorf("header write: %w", err)
	}
	if err := c.writeFull(body); err != nil {
		c.Close()
		return 0, fmt.Errorf("body write: %w", err)
	}

	c.logFrame(log.DirectionOut, protVer, msgType, body)
	return len(body), nil
}

// writeFull writes all of data or fails. net.Conn.Write returning short
// without error does not happen per contract, but the check is the wire
// discipline: short means fatal.
func (c *Conn) writeFull(data []byte) error {
	n, err := c.conn.Write(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailure, err)
	}
	if n < len(data) {
		return fmt.Errorf("%w: wrote %d/%d bytes", ErrShortWrite, n, len(data))
	}
	return nil
}

// Close closes the underlying stream exactly once.
// Safe to call in any state and from any point after construction.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) logFrame(dir log.Direction, protVer, msgType uint32, body []byte) {
	data := body
	truncated := false
	if len(body) > MaxLogBodySize {
		data = body[:MaxLogBodySize]
		truncated = true
	}

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Direction: dir,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame: &log.FrameEvent{
			ProtocolVersion: protVer,
			MessageType:     msgType,
			Size:            len(body),
			Data:            data,
			Truncated:       truncated,
		},
	})
}
