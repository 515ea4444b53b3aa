package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// BumpPort derives a peer's data-plane bus port from its advertised service
// locator by a fixed offset: a member's enlistment address and the port it
// actually listens on for tablet and membership pushes are always a fixed
// number of ports apart.
func BumpPort(addr string, delta int) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	newPort := port + delta
	if newPort < 0 || newPort > 0xFFFF {
		return "", fmt.Errorf("resulting port %d out of range", newPort)
	}
	return net.JoinHostPort(host, strconv.Itoa(newPort)), nil
}

// DefaultDataPortOffset is the default distance, in port numbers, between
// a member's advertised service locator and the bus port it actually
// listens on for the coordinator's tablet and membership pushes.
const DefaultDataPortOffset = 1

// TCPTransport dials a fresh connection per session. Sessions are not
// pooled; the coordinator's call volume (membership pushes, tablet
// pushes, recovery kickoffs) does not warrant the complexity of a
// connection cache.
type TCPTransport struct {
	DialTimeout time.Duration

	// DataPortOffset is added to a locator's port, via BumpPort, before
	// dialing. Zero disables the offset and dials the locator as given.
	DataPortOffset int
}

func NewTCPTransport(dialTimeout time.Duration) *TCPTransport {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &TCPTransport{DialTimeout: dialTimeout, DataPortOffset: DefaultDataPortOffset}
}

func (t *TCPTransport) GetSession(locator string) (Session, error) {
	addr := locator
	if t.DataPortOffset != 0 {
		bumped, err := BumpPort(locator, t.DataPortOffset)
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		addr = bumped
	}
	conn, err := net.DialTimeout("tcp", addr, t.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &tcpSession{conn: conn, timeout: t.DialTimeout}, nil
}

// MaxFrameSize bounds the length prefix ReadFrame and SendRequest will
// honor, so a peer can never make either side allocate an arbitrarily
// large buffer off a forged header.
const MaxFrameSize = 64 << 20

// tcpSession frames each request/response as a uint32 big-endian length
// prefix followed by that many bytes of payload.
type tcpSession struct {
	conn    net.Conn
	timeout time.Duration
}

func (s *tcpSession) SendRequest(payload []byte) ([]byte, error) {
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := s.conn.Write(header[:]); err != nil {
		return nil, fmt.Errorf("transport: write header: %w", err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		return nil, fmt.Errorf("transport: write payload: %w", err)
	}

	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, fmt.Errorf("transport: read response header: %w", err)
	}
	respLen := binary.BigEndian.Uint32(header[:])
	if respLen > MaxFrameSize {
		return nil, fmt.Errorf("transport: response frame of %d bytes exceeds MaxFrameSize", respLen)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(s.conn, resp); err != nil {
		return nil, fmt.Errorf("transport: read response payload: %w", err)
	}
	return resp, nil
}

func (s *tcpSession) Close() error {
	return s.conn.Close()
}

// WriteFrame and ReadFrame are the server-side counterparts used by
// cmd/coordinator's listener loop to speak the same framing.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds MaxFrameSize", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
