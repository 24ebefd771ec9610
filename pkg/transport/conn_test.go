package transport

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odo-protocol/odo-go/pkg/wire"
)

func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	client := NewConn(a, RoleClient, Config{})
	server := NewConn(b, RoleServer, Config{})
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := pipePair(t)
	body := []byte("onboarding payload")

	go func() {
		_, _ = client.Send(wire.ProtocolVersion, 10, body)
	}()

	protVer, msgType, got, err := server.RecvMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.ProtocolVersion, protVer)
	assert.Equal(t, uint32(10), msgType)
	assert.Equal(t, body, got)

	// Response direction uses the response header form.
	reply := []byte{0xa0}
	go func() {
		_, _ = server.Send(wire.ProtocolVersion, 11, reply)
	}()

	protVer, msgType, got, err = client.RecvMessage()
	require.NoError(t, err)
	assert.Equal(t, wire.ProtocolVersion, protVer)
	assert.Equal(t, uint32(11), msgType)
	assert.Equal(t, reply, got)
}

func TestRecvHeaderStripsTerminators(t *testing.T) {
	a, b := net.Pipe()
	conn := NewConn(b, RoleClient, Config{})
	t.Cleanup(func() { a.Close(); conn.Close() })

	go func() {
		// Mixed \n and \r\n terminators.
		a.Write([]byte("POST /odo/113/msg/10 HTTP/1.1\r\nContent-Length: 3\n\r\n"))
	}()

	protVer, msgType, n, err := conn.RecvHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(113), protVer)
	assert.Equal(t, uint32(10), msgType)
	assert.Equal(t, 3, n)
}

func TestRecvHeaderTooLarge(t *testing.T) {
	a, b := net.Pipe()
	conn := NewConn(b, RoleClient, Config{})
	t.Cleanup(func() { a.Close(); conn.Close() })

	go func() {
		a.Write([]byte("POST /odo/113/msg/10 HTTP/1.1\n"))
		a.Write([]byte("X-Padding: " + strings.Repeat("x", MaxHeaderSize) + "\n"))
	}()

	_, _, _, err := conn.RecvHeader()
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestRecvHeaderMalformed(t *testing.T) {
	a, b := net.Pipe()
	conn := NewConn(b, RoleClient, Config{})
	t.Cleanup(func() { a.Close(); conn.Close() })

	go func() {
		a.Write([]byte("NONSENSE LINE\n\n"))
	}()

	_, _, _, err := conn.RecvHeader()
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestRecvHeaderIoFailure(t *testing.T) {
	a, b := net.Pipe()
	conn := NewConn(b, RoleClient, Config{})
	t.Cleanup(func() { conn.Close() })

	go func() {
		a.Write([]byte("POST /odo/113/msg/10 HTT"))
		a.Close()
	}()

	_, _, _, err := conn.RecvHeader()
	require.ErrorIs(t, err, ErrIoFailure)
}

func TestRecvBodyAccumulatesPartialReads(t *testing.T) {
	a, b := net.Pipe()
	conn := NewConn(b, RoleClient, Config{})
	t.Cleanup(func() { a.Close(); conn.Close() })

	want := []byte("abcdefghij")
	go func() {
		// Deliver the body in three separate writes.
		a.Write(want[:3])
		time.Sleep(5 * time.Millisecond)
		a.Write(want[3:7])
		time.Sleep(5 * time.Millisecond)
		a.Write(want[7:])
	}()

	got, err := conn.RecvBody(len(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecvBodyIoFailureMidRead(t *testing.T) {
	a, b := net.Pipe()
	conn := NewConn(b, RoleClient, Config{})
	t.Cleanup(func() { conn.Close() })

	go func() {
		a.Write([]byte("abc"))
		a.Close()
	}()

	_, err := conn.RecvBody(10)
	require.ErrorIs(t, err, ErrIoFailure)
}

// eofTailConn delivers its payload and returns io.EOF together with the
// final bytes, as a peer that writes the body and immediately closes can.
type eofTailConn struct {
	net.Conn
	payload []byte
}

func (c *eofTailConn) Read(p []byte) (int, error) {
	n := copy(p, c.payload)
	c.payload = c.payload[n:]
	if len(c.payload) == 0 {
		return n, io.EOF
	}
	return n, nil
}

func TestRecvBodyAcceptsFinalReadWithEOF(t *testing.T) {
	// A full buffered-reader's worth, so the read bypasses the buffer and
	// the (n, io.EOF) result reaches RecvBody directly.
	want := bytes.Repeat([]byte{0x5a}, 4096)
	conn := NewConn(&eofTailConn{payload: want}, RoleClient, Config{})

	got, err := conn.RecvBody(len(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The stream is exhausted; a further read fails.
	_, err = conn.RecvBody(1)
	require.ErrorIs(t, err, ErrIoFailure)
}

func TestRecvBodyRejectsOversize(t *testing.T) {
	_, server := pipePair(t)
	_, err := server.RecvBody(DefaultMaxBodySize + 1)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

// shortWriteConn wraps a net.Conn and truncates every write.
type shortWriteConn struct {
	net.Conn
}

func (c *shortWriteConn) Write(p []byte) (int, error) {
	if len(p) <= 1 {
		return c.Conn.Write(p)
	}
	return len(p) / 2, nil
}

func TestSendShortWriteIsFatal(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := a.Read(buf); err != nil {
				return
			}
		}
	}()

	conn := NewConn(&shortWriteConn{Conn: b}, RoleClient, Config{})
	_, err := conn.Send(wire.ProtocolVersion, 10, []byte("payload"))
	require.ErrorIs(t, err, ErrShortWrite)

	// The connection was torn down; the peer sees EOF.
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := a.Read(buf)
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("peer read did not unblock after short-write close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, b := net.Pipe()
	conn := NewConn(b, RoleClient, Config{})
	a.Close()

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}
