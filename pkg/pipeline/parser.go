package pipeline

import (
	"logroute/pkg/message"
	"logroute/pkg/syslogformat"
)

// rawPayloadKey is the NV slot the syslog parser stashes the original
// bytes under (see pkg/syslogformat/legacy.go); ParserNode re-parses
// from this slot rather than a serialized form of the Message, so a
// path can apply different ParseOptions than whatever produced the
// Message initially (e.g. a relay re-normalizing a forwarded message).
var rawPayloadKey = message.InternName(".internal.raw")

// ParserNode re-parses a message's raw payload with its own
// syslogformat.Options, replacing the message's NV-store contents while
// preserving its ack chain and source address. If the message carries
// no raw payload (already fully parsed upstream with nothing to redo),
// it forwards unchanged.
type ParserNode struct {
	base

	Options syslogformat.Options
}

func NewParserNode(opts syslogformat.Options) *ParserNode {
	return &ParserNode{Options: opts}
}

func (p *ParserNode) Init(cfg NodeConfig) error { return p.markInit() }

func (p *ParserNode) Deinit() error { return p.markDeinit() }

func (p *ParserNode) Queue(msg *message.Message, opts *PathOptions) {
	raw, ok := msg.NV.Get(rawPayloadKey)
	if !ok {
		p.forwardQueue(msg, opts)
		return
	}

	reparsed := syslogformat.Parse([]byte(raw), p.Options, msg.Recvd.Time())
	reparsed.Ack = msg.Ack
	reparsed.SourceAddr = msg.SourceAddr
	reparsed.Flags |= msg.Flags & message.FlagInternal

	p.forwardQueue(reparsed, opts)
}

func (p *ParserNode) Notify(code NotifyCode) { p.propagateNotify(code) }

func (p *ParserNode) Free() {}
