package syslogformat

import "errors"

var (
	errBadPriority    = errors.New("syslogformat: malformed priority")
	errBadVersion     = errors.New("syslogformat: unsupported RFC5424 version")
	errBadStructured  = errors.New("syslogformat: malformed structured data")
	errSDIDTooLong    = errors.New("syslogformat: SD-ID or PARAM-NAME exceeds 32 characters")
	errParamTooLong   = errors.New("syslogformat: PARAM-VALUE exceeds configured maximum length")
	errUnescapedClose = errors.New("syslogformat: unescaped ']' inside PARAM-VALUE")
)
