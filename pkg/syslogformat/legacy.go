package syslogformat

import (
	"regexp"
	"time"
	"unicode/utf8"

	"logroute/pkg/message"
)

// legacyTimeLayouts are the BSD/ISO/Cisco timestamp shapes recognised at
// the head of an RFC3164 message, tried in order. All but the ISO layouts
// are interpreted in the caller's receive timezone since they carry no
// zone of their own.
var legacyTimeLayouts = []string{
	"Jan _2 15:04:05",       // BSD syslog: "Oct 11 22:14:15"
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"Jan _2 2006 15:04:05", // Cisco IOS style
	"Mon Jan _2 15:04:05 2006",
}

// parseLegacy implements spec.md §4.2's RFC3164 legacy format:
// <PRI>[SEQ:] TIMESTAMP HOSTNAME TAG[PID]: MESSAGE
func parseLegacy(raw []byte, opts Options, recvTime time.Time) *message.Message {
	rest := raw
	pri, n, present, err := parsePRI(rest)
	if err != nil || !present {
		pri = opts.DefaultPriority
		if pri == 0 {
			pri = defaultPriorityUserNotice
		}
	} else {
		rest = rest[n:]
	}

	loc := opts.ReceiveTimezone
	if loc == nil {
		loc = time.Local
	}

	m := message.NewFromBytes(raw, recvTime)
	m.Priority = pri
	rawHandle := message.InternName(".internal.raw")
	m.SetValue(rawHandle, raw)

	rest, seqID := consumeSequencePrefix(rest)
	if seqID != "" {
		m.SetValue(message.InternName(".SDATA.meta.sequenceId"), []byte(seqID))
	}

	stamp, afterStamp, ok := consumeLegacyTimestamp(rest, loc)
	if ok {
		m.Stamp = message.TimeStampFromTime(stamp)
		rest = afterStamp
	} else {
		m.Stamp = m.Recvd
		// "no-timestamp" branch: continue parsing at the current position.
	}

	rest, aixHost := consumeAIXForwardedPrefix(rest)
	if aixHost != "" {
		m.SetValue(message.KeyHost, []byte(aixHost))
	}

	if consumeRepeatedPrefix(rest) {
		// "last message repeated" short-circuits further header parsing;
		// the remainder is the message body verbatim.
		finishMessage(m, rest, opts)
		return m
	}

	if aixHost == "" && opts.ExpectHostname {
		host, afterHost, matched := consumeHostnameToken(rest, opts)
		if matched {
			m.SetValue(message.KeyHost, []byte(host))
			rest = afterHost
		}
	}

	program, pid, afterProgram := consumeProgramToken(rest)
	if program != "" {
		m.SetValue(message.KeyProgram, []byte(program))
		if pid != "" {
			m.SetValue(message.KeyPID, []byte(pid))
		}
		rest = afterProgram
	}

	finishMessage(m, rest, opts)
	return m
}

func finishMessage(m *message.Message, residual []byte, opts Options) {
	if opts.NoMultiLine {
		residual = foldMultiLine(residual)
	}
	m.SetValue(message.KeyMessage, residual)
	if opts.ValidateUTF8 && utf8.Valid(residual) {
		m.Flags |= message.FlagUTF8
	} else if opts.AssumeUTF8 {
		m.Flags |= message.FlagUTF8
	}
}

func foldMultiLine(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c == '\r' || c == '\n' {
			out[i] = ' '
		} else {
			out[i] = c
		}
	}
	return out
}

var sequencePrefixRe = regexp.MustCompile(`^(\d+): `)

// consumeSequencePrefix captures an optional Cisco-style "digits: " prefix.
func consumeSequencePrefix(rest []byte) ([]byte, string) {
	loc := sequencePrefixRe.FindSubmatchIndex(rest)
	if loc == nil {
		return rest, ""
	}
	seq := string(rest[loc[2]:loc[3]])
	return rest[loc[1]:], seq
}

// consumeLegacyTimestamp tries each recognised layout at the head of rest.
func consumeLegacyTimestamp(rest []byte, loc *time.Location) (time.Time, []byte, bool) {
	s := string(rest)
	for _, layout := range legacyTimeLayouts {
		n := len(layout)
		// Allow layouts that don't carry a year to still match a
		// fixed-width prefix; Go's time.Parse requires the candidate
		// substring to match the layout length exactly for our
		// fixed-width BSD/Cisco forms.
		if len(s) < n {
			continue
		}
		candidate := s[:n]
		var t time.Time
		var err error
		if layout == "Jan _2 15:04:05" {
			t, err = time.ParseInLocation(layout, candidate, loc)
			if err == nil {
				now := time.Now().In(loc)
				t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
			}
		} else {
			t, err = time.Parse(layout, candidate)
		}
		if err != nil {
			continue
		}
		after := rest[n:]
		if len(after) > 0 && after[0] == ' ' {
			after = after[1:]
		}
		return t, after, true
	}
	return time.Time{}, rest, false
}

var aixForwardedRe = regexp.MustCompile(`^Message forwarded from ([^:]+): `)

func consumeAIXForwardedPrefix(rest []byte) ([]byte, string) {
	loc := aixForwardedRe.FindSubmatchIndex(rest)
	if loc == nil {
		return rest, ""
	}
	host := string(rest[loc[2]:loc[3]])
	return rest[loc[1]:], host
}

var repeatedRe = regexp.MustCompile(`^last message repeated \d+ times?`)

func consumeRepeatedPrefix(rest []byte) bool {
	return repeatedRe.Match(rest)
}

var hostnameCharRe = regexp.MustCompile(`^[A-Za-z0-9._:@/-]+$`)

// consumeHostnameToken tentatively treats the token up to the next space
// as a hostname, subject to expect-hostname/check-hostname/bad-hostname.
func consumeHostnameToken(rest []byte, opts Options) (string, []byte, bool) {
	sp := indexByte(rest, ' ')
	if sp < 0 {
		return "", rest, false
	}
	token := string(rest[:sp])
	if token == "" {
		return "", rest, false
	}
	if opts.CheckHostname && !hostnameCharRe.MatchString(token) {
		return "", rest, false
	}
	if opts.BadHostname != "" {
		if re, err := regexp.Compile(opts.BadHostname); err == nil && re.MatchString(token) {
			return "", rest, false
		}
	}
	return token, rest[sp+1:], true
}

// consumeProgramToken reads the program name up to ' ', '[', or ':',
// followed by an optional "[pid]" and a trailing ": " (colon plus single
// space).
func consumeProgramToken(rest []byte) (program, pid string, after []byte) {
	i := 0
	for i < len(rest) && rest[i] != ' ' && rest[i] != '[' && rest[i] != ':' {
		i++
	}
	if i == 0 {
		return "", "", rest
	}
	program = string(rest[:i])
	j := i
	if j < len(rest) && rest[j] == '[' {
		end := indexByte(rest[j:], ']')
		if end > 0 {
			pid = string(rest[j+1 : j+end])
			j += end + 1
		}
	}
	if j < len(rest) && rest[j] == ':' {
		j++
	}
	if j < len(rest) && rest[j] == ' ' {
		j++
	}
	return program, pid, rest[j:]
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
