package frame

import (
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultMaxFrameSize bounds a single frame; a peer that never closes
	// its object cannot make the reader buffer without limit.
	DefaultMaxFrameSize = 16 << 20

	readChunkSize = 8192
)

var (
	// ErrIncomplete means the stream ended before the current frame closed.
	ErrIncomplete = errors.New("frame: stream ended before frame completed")
	// ErrFrameTooLarge means a frame exceeded the configured size limit.
	ErrFrameTooLarge = errors.New("frame: frame exceeds size limit")
	// ErrNoFrame means ReadFrameOnce received bytes that did not open a frame.
	ErrNoFrame = errors.New("frame: data did not open a frame")
)

// Reader reads brace-delimited JSON frames from a stream. Bytes that arrive
// after the end of a frame are retained and served by the next ReadFrame.
type Reader struct {
	r       io.Reader
	limit   int
	scanner Scanner
	buf     []byte
	pending []byte
	chunk   []byte
}

// NewReader creates a Reader with the default size limit.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:     r,
		limit: DefaultMaxFrameSize,
		chunk: make([]byte, readChunkSize),
	}
}

// SetLimit updates the maximum frame size. Non-positive values restore the default.
func (fr *Reader) SetLimit(n int) {
	if n <= 0 {
		n = DefaultMaxFrameSize
	}
	fr.limit = n
}

// Reset drops any partially read frame and buffered bytes.
func (fr *Reader) Reset() {
	fr.scanner.Reset()
	fr.buf = nil
	fr.pending = nil
}

// Buffered reports whether bytes of a later frame are already held.
func (fr *Reader) Buffered() bool {
	return len(fr.pending) > 0
}

// ReadFrame blocks until one complete frame is available and returns its
// raw bytes, from the opening brace through the matching closing brace.
//
// A clean end of stream between frames returns io.EOF. An end of stream
// inside a frame returns an error matching both ErrIncomplete and io.EOF.
// Any other read error is returned wrapped and the partial frame is dropped.
func (fr *Reader) ReadFrame() ([]byte, error) {
	return fr.read(false)
}

// ReadFrameOnce is ReadFrame for a peer that may send free text instead of
// a frame. If a read delivers bytes and no frame has opened by the end of
// them, those bytes are dropped and ErrNoFrame is returned rather than
// waiting for more. A frame that has opened is read to completion.
func (fr *Reader) ReadFrameOnce() ([]byte, error) {
	return fr.read(true)
}

func (fr *Reader) read(stopOnNoise bool) ([]byte, error) {
	for len(fr.pending) > 0 {
		p := fr.pending
		fr.pending = nil
		frame, ok, err := fr.consume(p)
		if err != nil || ok {
			return frame, err
		}
	}

	for {
		n, rerr := fr.r.Read(fr.chunk)
		if n > 0 {
			frame, ok, err := fr.consume(fr.chunk[:n])
			if err != nil || ok {
				return frame, err
			}
			if stopOnNoise && !fr.scanner.Started() {
				return nil, ErrNoFrame
			}
		}
		if rerr == nil {
			continue
		}

		partial := fr.scanner.Started()
		fr.Reset()
		if errors.Is(rerr, io.EOF) {
			if partial {
				return nil, fmt.Errorf("%w: %w", ErrIncomplete, io.EOF)
			}
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame: %w", rerr)
	}
}

// consume feeds p to the scanner, accumulating the current frame. It
// returns the completed frame and true once the closing brace is seen.
func (fr *Reader) consume(p []byte) ([]byte, bool, error) {
	start, end, done := fr.scanner.Feed(p)
	if !done && !fr.scanner.Started() {
		return nil, false, nil
	}

	fr.buf = append(fr.buf, p[start:end]...)
	if len(fr.buf) > fr.limit {
		size := len(fr.buf)
		fr.Reset()
		return nil, false, fmt.Errorf("%w: %d bytes > %d", ErrFrameTooLarge, size, fr.limit)
	}
	if !done {
		return nil, false, nil
	}

	if end < len(p) {
		fr.pending = append([]byte(nil), p[end:]...)
	}
	frame := fr.buf
	fr.buf = nil
	return frame, true, nil
}
