package sources

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logroute/pkg/message"
)

func TestDatagramDriverEmitsOneMessagePerPacket(t *testing.T) {
	c := &collector{}
	d := NewDatagramDriver(DatagramDriverConfig{Network: "udp", Address: "127.0.0.1:0", Logger: testSourcesLogger()}, c.emit)
	require.NoError(t, d.Start())
	defer d.Stop()

	conn, err := net.Dial("udp", d.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("<13>hello there"))
	require.NoError(t, err)

	waitForCount(t, c, 1, time.Second)
	v, _ := c.msgs[0].GetValue(message.KeyMessage)
	assert.Equal(t, "hello there", v)
	assert.NotEmpty(t, c.msgs[0].SourceAddr)
}

func TestDatagramDriverStopUnblocksReadLoop(t *testing.T) {
	c := &collector{}
	d := NewDatagramDriver(DatagramDriverConfig{Network: "udp", Address: "127.0.0.1:0", Logger: testSourcesLogger()}, c.emit)
	require.NoError(t, d.Start())

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly after closing the socket")
	}
}
