package syslogformat

import (
	"time"

	"logroute/pkg/message"
)

// Parse lifts a raw syslog payload into a Message. When opts.SyslogProtocol
// is set it tries RFC5424 first and falls back to the RFC3164 legacy
// parser if the RFC5424 header does not validate (spec.md §4.2: "Auto
// falls back to legacy if RFC5424 header prefix does not validate").
// Parse never returns an error: a payload that matches neither format
// still yields a best-effort legacy Message, since the legacy parser
// tolerates a missing PRI and missing timestamp.
func Parse(raw []byte, opts Options, recvTime time.Time) *message.Message {
	if opts.SyslogProtocol {
		if m, err := parseRFC5424(raw, opts, recvTime); err == nil {
			return m
		}
	}
	return parseLegacy(raw, opts, recvTime)
}
