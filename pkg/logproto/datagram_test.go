package logproto

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDatagramFramerOneMessagePerPacket(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	sender, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.Write([]byte("hello datagram"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	f := NewDatagramFramer()
	payload, err := f.ReadMessage(conn)
	require.NoError(t, err)
	require.Equal(t, "hello datagram", string(payload))
	require.Equal(t, int64(1), f.Position())
	require.NotNil(t, f.LastAddr())
}

func TestDatagramFramerRejectsNonPacketConn(t *testing.T) {
	f := NewDatagramFramer()
	_, err := f.ReadMessage(stubReader{})
	require.ErrorIs(t, err, ErrRequiresPacketConn)
}

type stubReader struct{}

func (stubReader) Read(p []byte) (int, error) { return 0, nil }
