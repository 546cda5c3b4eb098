package sources

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"logroute/pkg/logproto"
	"logroute/pkg/message"
	"logroute/pkg/pipeline"
	"logroute/pkg/syslogformat"
)

// DatagramDriverConfig configures a DatagramDriver.
type DatagramDriverConfig struct {
	// Network is passed to net.ListenPacket; "udp" by default.
	Network string
	// Address is the local address to bind, e.g. "0.0.0.0:514".
	Address string

	MaxDatagramSize int
	ParseOptions    syslogformat.Options

	Logger *logrus.Logger
}

// DatagramDriver listens for syslog datagrams, treating each packet as
// exactly one message — the one-packet-per-read discipline of a UDP
// syslog listener (as opposed to FileDriver's stream-of-frames
// discipline), grounded on the teacher pack's affile-style datagram
// source and backed here by logproto.DatagramFramer.
type DatagramDriver struct {
	cfg    DatagramDriverConfig
	emit   func(*message.Message, *pipeline.PathOptions)
	framer *logproto.DatagramFramer
	logger *logrus.Logger

	conn   net.PacketConn
	doneCh chan struct{}
}

// NewDatagramDriver returns a driver that calls emit for each received
// datagram, parsed as a syslog message.
func NewDatagramDriver(cfg DatagramDriverConfig, emit func(*message.Message, *pipeline.PathOptions)) *DatagramDriver {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	framer := logproto.NewDatagramFramer()
	if cfg.MaxDatagramSize > 0 {
		framer.MaxDatagramSize = cfg.MaxDatagramSize
	}
	return &DatagramDriver{
		cfg:    cfg,
		emit:   emit,
		framer: framer,
		logger: logger,
	}
}

func (d *DatagramDriver) network() string {
	if d.cfg.Network != "" {
		return d.cfg.Network
	}
	return "udp"
}

// Start binds the listening socket and begins reading datagrams in a
// background goroutine.
func (d *DatagramDriver) Start() error {
	conn, err := net.ListenPacket(d.network(), d.cfg.Address)
	if err != nil {
		return err
	}
	d.conn = conn
	d.doneCh = make(chan struct{})
	go d.run()
	return nil
}

// LocalAddr returns the bound socket's address, useful for tests and
// logging when Address used an ephemeral port (":0").
func (d *DatagramDriver) LocalAddr() net.Addr {
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// Stop closes the socket, which unblocks the pending ReadFrom in run
// and lets it exit.
func (d *DatagramDriver) Stop() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	<-d.doneCh
	return err
}

func (d *DatagramDriver) run() {
	defer close(d.doneCh)
	for {
		raw, err := d.framer.ReadMessage(d.conn)
		if err != nil {
			// Close() on Stop unblocks ReadFrom with a "use of closed
			// network connection" error; that's the expected exit path,
			// not a condition worth logging.
			return
		}
		msg := syslogformat.Parse(raw, d.cfg.ParseOptions, time.Now())
		if addr := d.framer.LastAddr(); addr != nil {
			msg.SourceAddr = addr.String()
		}
		d.emit(msg, nil)
	}
}

var _ pipeline.Driver = (*DatagramDriver)(nil)
