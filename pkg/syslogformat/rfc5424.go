package syslogformat

import (
	"bytes"
	"time"
	"unicode/utf8"

	"logroute/pkg/message"
)

const (
	maxAppNameLen = 48
	maxProcIDLen  = 128
	maxMsgIDLen   = 32
	maxSDNameLen  = 32
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseRFC5424 implements spec.md §4.2's structured-data format:
// <PRI>VERSION SP TIMESTAMP SP HOSTNAME SP APP-NAME SP PROCID SP MSGID SP SD [SP MSG]
// It returns an error (never partial state) when the header does not
// validate, so the caller can fall back to the legacy parser.
func parseRFC5424(raw []byte, opts Options, recvTime time.Time) (*message.Message, error) {
	pri, n, present, err := parsePRI(raw)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, errBadVersion
	}
	rest := raw[n:]

	field, rest, ok := splitField(rest)
	if !ok || string(field) != "1" {
		return nil, errBadVersion
	}

	tsField, rest, ok := splitField(rest)
	if !ok {
		return nil, errBadVersion
	}
	var stamp time.Time
	if string(tsField) != "-" {
		stamp, err = time.Parse(time.RFC3339Nano, string(tsField))
		if err != nil {
			return nil, errBadVersion
		}
	} else {
		stamp = recvTime
	}

	hostField, rest, ok := splitField(rest)
	if !ok {
		return nil, errBadVersion
	}
	appField, rest, ok := splitField(rest)
	if !ok {
		return nil, errBadVersion
	}
	procField, rest, ok := splitField(rest)
	if !ok {
		return nil, errBadVersion
	}
	msgidField, rest, ok := splitField(rest)
	if !ok {
		return nil, errBadVersion
	}

	sd, rest, err := parseStructuredData(rest, opts)
	if err != nil {
		return nil, err
	}

	m := message.NewFromBytes(raw, recvTime)
	m.Priority = pri
	m.Stamp = message.TimeStampFromTime(stamp)

	if string(hostField) != "-" {
		m.SetValue(message.KeyHost, hostField)
	}
	if string(appField) != "-" {
		m.SetValue(message.KeyProgram, truncate(appField, maxAppNameLen))
	}
	if string(procField) != "-" {
		m.SetValue(message.KeyPID, truncate(procField, maxProcIDLen))
	}
	if string(msgidField) != "-" {
		m.SetValue(message.KeyMsgID, truncate(msgidField, maxMsgIDLen))
	}

	for _, elem := range sd {
		if len(elem.params) == 0 {
			m.SetValue(message.InternName(".SDATA."+elem.id), nil)
			continue
		}
		for _, p := range elem.params {
			key := ".SDATA." + elem.id + "." + p.name
			m.SetValue(message.InternName(key), []byte(p.value))
		}
	}

	msg := bytes.TrimPrefix(rest, []byte(" "))
	if bytes.HasPrefix(msg, utf8BOM) {
		msg = msg[len(utf8BOM):]
		m.Flags |= message.FlagUTF8
	} else if opts.ValidateUTF8 && utf8.Valid(msg) {
		m.Flags |= message.FlagUTF8
	}
	if opts.NoMultiLine {
		msg = foldMultiLine(msg)
	}
	m.SetValue(message.KeyMessage, msg)

	return m, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// splitField consumes one SP-delimited token from the head of b.
func splitField(b []byte) (field, rest []byte, ok bool) {
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return nil, nil, false
	}
	return b[:i], b[i+1:], true
}

type sdParam struct {
	name  string
	value string
}

type sdElement struct {
	id     string
	params []sdParam
}

// parseStructuredData parses "-" or 1*SD-ELEMENT from the head of b,
// returning the unconsumed remainder (which may begin with " " followed
// by MSG, or be empty).
func parseStructuredData(b []byte, opts Options) ([]sdElement, []byte, error) {
	if len(b) > 0 && b[0] == '-' {
		rest := b[1:]
		return nil, rest, nil
	}

	var elems []sdElement
	for len(b) > 0 && b[0] == '[' {
		elem, rest, err := parseSDElement(b, opts)
		if err != nil {
			return nil, nil, err
		}
		elems = append(elems, elem)
		b = rest
	}
	if len(elems) == 0 {
		return nil, nil, errBadStructured
	}
	return elems, b, nil
}

func parseSDElement(b []byte, opts Options) (sdElement, []byte, error) {
	if len(b) == 0 || b[0] != '[' {
		return sdElement{}, nil, errBadStructured
	}
	b = b[1:]

	id, b, ok := consumeSDName(b)
	if !ok {
		return sdElement{}, nil, errBadStructured
	}
	elem := sdElement{id: id}

	for len(b) > 0 && b[0] == ' ' {
		b = b[1:]
		name, rest, ok := consumeSDName(b)
		if !ok || len(rest) == 0 || rest[0] != '=' {
			return sdElement{}, nil, errBadStructured
		}
		rest = rest[1:]
		if len(rest) == 0 || rest[0] != '"' {
			return sdElement{}, nil, errBadStructured
		}
		rest = rest[1:]
		value, rest, err := consumeSDValue(rest, maxSDParamLen(opts))
		if err != nil {
			return sdElement{}, nil, err
		}
		elem.params = append(elem.params, sdParam{name: name, value: value})
		b = rest
	}

	if len(b) == 0 || b[0] != ']' {
		return sdElement{}, nil, errBadStructured
	}
	return elem, b[1:], nil
}

// consumeSDName reads SD-ID/PARAM-NAME: up to 32 ASCII-printable
// characters excluding '=', space, ']', '"'.
func consumeSDName(b []byte) (string, []byte, bool) {
	i := 0
	for i < len(b) {
		c := b[i]
		if c == '=' || c == ' ' || c == ']' || c == '"' || c < 0x21 || c > 0x7e {
			break
		}
		i++
		if i > maxSDNameLen {
			return "", nil, false
		}
	}
	if i == 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i:], true
}

// consumeSDValue reads PARAM-VALUE up to the closing unescaped quote,
// unescaping \", \\, \] along the way. An unescaped ']' before the
// closing quote is a parse error (spec.md §4.2 structured-data grammar).
func consumeSDValue(b []byte, maxLen int) (string, []byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c == '"':
			if out.Len() > maxLen {
				return "", nil, errParamTooLong
			}
			return out.String(), b[i+1:], nil
		case c == '\\' && i+1 < len(b) && (b[i+1] == '"' || b[i+1] == '\\' || b[i+1] == ']'):
			out.WriteByte(b[i+1])
			i += 2
		case c == ']':
			return "", nil, errUnescapedClose
		default:
			out.WriteByte(c)
			i++
		}
	}
	return "", nil, errBadStructured
}
