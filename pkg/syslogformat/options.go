// Package syslogformat lifts raw syslog payloads into structured
// pkg/message.Message values, implementing both the RFC3164 legacy
// format and the RFC5424 structured-data format. The parser is pure over
// (bytes, options, recv_time, zone) — property P-1.
package syslogformat

import "logroute/pkg/message"

// Options is an alias of message.ParseOptions so callers configure parsing
// the same way whether they read it from pipeline config or construct it
// directly in tests.
type Options = message.ParseOptions

const defaultMaxSDParamLen = 4096

func maxSDParamLen(o Options) int {
	if o.MaxSDParamLen > 0 {
		return o.MaxSDParamLen
	}
	return defaultMaxSDParamLen
}

// defaultPriorityUserNotice is facility=user(1)*8 + severity=notice(5) = 13,
// the spec's "typical" default when PRI is absent.
const defaultPriorityUserNotice = 13
