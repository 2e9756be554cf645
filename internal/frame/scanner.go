// Package frame recovers self-delimited JSON objects from a raw byte stream.
//
// The wire carries no length prefix and no delimiter byte: a frame ends when
// the brace depth of the first top-level object returns to zero. Braces that
// appear inside string literals, including after escaped quotes, do not count.
//
// The scanner works on bytes rather than decoded runes. Every structural
// character ({, }, ", \) is ASCII, and UTF-8 never uses ASCII byte values
// inside a multi-byte sequence, so the two are equivalent.
package frame

type state uint8

const (
	stateNotStarted state = iota
	stateInObject
	stateInString
	stateInEscape
)

func (s state) String() string {
	switch s {
	case stateNotStarted:
		return "not_started"
	case stateInObject:
		return "in_object"
	case stateInString:
		return "in_string"
	case stateInEscape:
		return "in_escape"
	default:
		return "unknown"
	}
}

// Scanner is an incremental brace-depth state machine. The zero value is
// ready to use.
type Scanner struct {
	state state
	depth int
}

// Started reports whether the opening brace of a frame has been seen.
func (s *Scanner) Started() bool {
	return s.state != stateNotStarted
}

// Reset returns the scanner to its initial state.
func (s *Scanner) Reset() {
	*s = Scanner{}
}

// Feed scans p and reports where the current frame begins and ends within
// it. start is the index of the opening brace when it occurs in p, otherwise
// 0 (the frame began in an earlier call, or has not begun and p is skipped
// entirely). When done is true, p[:end] contains the closing brace and the
// scanner is reset so the remainder can be fed as the next frame.
func (s *Scanner) Feed(p []byte) (start, end int, done bool) {
	for i, c := range p {
		switch s.state {
		case stateNotStarted:
			if c == '{' {
				s.state = stateInObject
				s.depth = 1
				start = i
			}
		case stateInEscape:
			s.state = stateInString
		case stateInString:
			switch c {
			case '\\':
				s.state = stateInEscape
			case '"':
				s.state = stateInObject
			}
		case stateInObject:
			switch c {
			case '"':
				s.state = stateInString
			case '{':
				s.depth++
			case '}':
				s.depth--
				if s.depth == 0 {
					s.Reset()
					return start, i + 1, true
				}
			}
		}
	}
	return start, len(p), false
}

// Split scans a complete buffer and returns every frame it contains,
// followed by the bytes of any trailing partial frame. Bytes before and
// between frames that are outside any object are dropped. The returned
// frames alias data.
func Split(data []byte) (frames [][]byte, rest []byte) {
	var sc Scanner
	for len(data) > 0 {
		start, end, done := sc.Feed(data)
		if !done {
			if sc.Started() {
				return frames, data[start:]
			}
			return frames, nil
		}
		frames = append(frames, data[start:end])
		data = data[end:]
	}
	return frames, nil
}
