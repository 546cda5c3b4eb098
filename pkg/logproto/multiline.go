package logproto

// IndentedMultilineFramer joins a non-indented line with any following
// lines that start with whitespace (classic Java-stack-trace-style
// continuation). A message is only emitted once the following line's
// boundary is known, so the very last message of a stream is held back
// until the next ReadMessage call finds a non-continuation line.
type IndentedMultilineFramer struct {
	lines TextFramer

	pending     []byte
	havePending bool
}

func NewIndentedMultilineFramer() *IndentedMultilineFramer {
	return &IndentedMultilineFramer{lines: TextFramer{MaxLine: defaultMaxLine}}
}

func isContinuation(line []byte) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

func (f *IndentedMultilineFramer) ReadMessage(r ByteReader) ([]byte, error) {
	for {
		line, err := f.lines.ReadMessage(r)
		if err != nil {
			return nil, err
		}

		if isContinuation(line) {
			if !f.havePending {
				// a continuation line with nothing to continue stands on
				// its own rather than being silently dropped.
				return line, nil
			}
			f.pending = append(f.pending, '\n')
			f.pending = append(f.pending, line...)
			continue
		}

		if f.havePending {
			msg := f.pending
			f.pending = append([]byte(nil), line...)
			return msg, nil
		}
		f.pending = append([]byte(nil), line...)
		f.havePending = true
	}
}

func (f *IndentedMultilineFramer) Position() int64 { return f.lines.Position() }

func (f *IndentedMultilineFramer) SaveState() []byte { return f.lines.SaveState() }

func (f *IndentedMultilineFramer) RestoreState(state []byte) error {
	f.pending = nil
	f.havePending = false
	return f.lines.RestoreState(state)
}

// MultilineMode selects RegexMultilineFramer's boundary discipline.
type MultilineMode int

const (
	// PrefixGarbageMode starts a new message at any line matching Prefix;
	// lines matching Garbage are discarded outright (never appended to
	// any message); anything else continues the current message.
	PrefixGarbageMode MultilineMode = iota
	// PrefixSuffixMode starts a message at a Prefix-matching line and
	// closes it, inclusive, at the next Suffix-matching line.
	PrefixSuffixMode
)

// Matcher is satisfied by *regexp.Regexp; kept as an interface so callers
// can plug in cheaper matchers (e.g. a literal prefix check) for hot paths.
type Matcher interface {
	Match([]byte) bool
}

// RegexMultilineFramer implements the two regex-driven multiline
// disciplines from spec.md §4.3.
type RegexMultilineFramer struct {
	Mode    MultilineMode
	Prefix  Matcher
	Garbage Matcher // PrefixGarbageMode only; may be nil
	Suffix  Matcher // PrefixSuffixMode only

	lines TextFramer

	pending     []byte
	havePending bool
}

func NewRegexMultilineFramer(mode MultilineMode, prefix, garbageOrSuffix Matcher) *RegexMultilineFramer {
	f := &RegexMultilineFramer{Mode: mode, Prefix: prefix, lines: TextFramer{MaxLine: defaultMaxLine}}
	if mode == PrefixSuffixMode {
		f.Suffix = garbageOrSuffix
	} else {
		f.Garbage = garbageOrSuffix
	}
	return f
}

func (f *RegexMultilineFramer) ReadMessage(r ByteReader) ([]byte, error) {
	if f.Mode == PrefixSuffixMode {
		return f.readPrefixSuffix(r)
	}
	return f.readPrefixGarbage(r)
}

func (f *RegexMultilineFramer) readPrefixGarbage(r ByteReader) ([]byte, error) {
	for {
		line, err := f.lines.ReadMessage(r)
		if err != nil {
			return nil, err
		}
		if f.Garbage != nil && f.Garbage.Match(line) {
			continue
		}
		if f.Prefix.Match(line) {
			if f.havePending {
				msg := f.pending
				f.pending = append([]byte(nil), line...)
				return msg, nil
			}
			f.pending = append([]byte(nil), line...)
			f.havePending = true
			continue
		}
		if !f.havePending {
			return line, nil
		}
		f.pending = append(f.pending, '\n')
		f.pending = append(f.pending, line...)
	}
}

func (f *RegexMultilineFramer) readPrefixSuffix(r ByteReader) ([]byte, error) {
	for {
		line, err := f.lines.ReadMessage(r)
		if err != nil {
			return nil, err
		}
		if !f.havePending {
			if !f.Prefix.Match(line) {
				continue
			}
			f.pending = append([]byte(nil), line...)
			f.havePending = true
			if f.Suffix.Match(line) {
				msg := f.pending
				f.pending = nil
				f.havePending = false
				return msg, nil
			}
			continue
		}
		f.pending = append(f.pending, '\n')
		f.pending = append(f.pending, line...)
		if f.Suffix.Match(line) {
			msg := f.pending
			f.pending = nil
			f.havePending = false
			return msg, nil
		}
	}
}

func (f *RegexMultilineFramer) Position() int64 { return f.lines.Position() }

func (f *RegexMultilineFramer) SaveState() []byte { return f.lines.SaveState() }

func (f *RegexMultilineFramer) RestoreState(state []byte) error {
	f.pending = nil
	f.havePending = false
	return f.lines.RestoreState(state)
}
