package transport

import (
	"bytes"
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBumpPortAddsDelta(t *testing.T) {
	addr, err := BumpPort("10.0.0.1:7100", 1)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:7101", addr)
}

func TestBumpPortRejectsOutOfRangeResult(t *testing.T) {
	_, err := BumpPort("10.0.0.1:65535", 1)
	require.Error(t, err)
}

func TestBumpPortRejectsMalformedAddr(t *testing.T) {
	_, err := BumpPort("not-an-address", 1)
	require.Error(t, err)
}

func TestGetSessionDialsBumpedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, realPort, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	realPortNum, err := strconv.Atoi(realPort)
	require.NoError(t, err)

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	tr := NewTCPTransport(time.Second)
	tr.DataPortOffset = -1 // locator's "control" port is realPort+1, bus port is realPort
	locator := net.JoinHostPort("127.0.0.1", strconv.Itoa(realPortNum+1))

	session, err := tr.GetSession(locator)
	require.NoError(t, err)
	defer session.Close()

	<-accepted
}

func TestGetSessionWithZeroOffsetDialsLocatorDirectly(t *testing.T) {
	tr := NewTCPTransport(time.Second)
	tr.DataPortOffset = 0
	_, err := tr.GetSession("127.0.0.1:0")
	require.Error(t, err, "nothing listens on port 0, so the dial itself should fail, not the offset math")
}

func TestWriteReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestReadFrameOnEmptyReaderFails(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestReadFrameRejectsOversizedLengthPrefix(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	_, err := ReadFrame(bytes.NewReader(header[:]))
	require.Error(t, err, "a forged oversized length prefix must not cause a giant allocation")
}
