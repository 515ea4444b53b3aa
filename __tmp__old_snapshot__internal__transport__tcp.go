package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// BumpPort derives a peer's control-plane bus port from its main service
// address by a fixed offset: the coordinator's own control channel to a
// member and that member's data channel are always a fixed number of
// ports apart.
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

// TCPTransport dials a fresh connection per session. Sessions are not
// pooled; the coordinator's call volume (membership pushes, tablet
// pushes, recovery kickoffs) does not warrant the complexity of a
// connection cache.
type TCPTransport struct {
	DialTimeout time.Duration
}

func NewTCPTransport(dialTimeout time.Duration) *TCPTransport {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &TCPTransport{DialTimeout: dialTimeout}
}

func (t *TCPTransport) GetSession(locator string) (Session, error) {
	conn, err := net.DialTimeout("tcp", locator, t.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", locator, err)
	}
	return &tcpSession{conn: conn, timeout: t.DialTimeout}, nil
}

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
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}


