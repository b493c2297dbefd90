package wire

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxLineSize bounds a single protocol line.
const DefaultMaxLineSize = 1 << 20

// Reader parses frames from a byte stream.
// It is not safe for concurrent use.
type Reader struct {
	scanner *bufio.Scanner
	skipLF  bool
	// id and retry from blocks that carried neither data nor an event
	pendingID    string
	pendingRetry time.Duration
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxLineSize sets the longest line the reader accepts.
// Longer lines make Next return bufio.ErrTooLong.
func WithMaxLineSize(n int) ReaderOption {
	return func(r *Reader) {
		r.scanner.Buffer(make([]byte, 0, min(n, 4096)), n)
	}
}

// NewReader creates a frame reader over r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{scanner: bufio.NewScanner(r)}
	rd.scanner.Buffer(make([]byte, 0, 4096), DefaultMaxLineSize)
	rd.scanner.Split(rd.splitLines)
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next returns the next complete frame. Heartbeats and other comments are
// skipped, as are blocks carrying neither data nor an event type. An id or
// retry in such a block is not lost: it is applied to the next frame that
// does not set its own. One still pending when the stream ends is dropped.
// Returns io.EOF when the stream ends; a frame still missing its terminating
// blank line at that point is discarded.
func (r *Reader) Next() (Frame, error) {
	var (
		frame   Frame
		data    strings.Builder
		hasData bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if hasData || frame.Event != "" {
				frame.Data = data.String()
				if frame.ID == "" {
					frame.ID = r.pendingID
				}
				if frame.Retry == 0 {
					frame.Retry = r.pendingRetry
				}
				r.pendingID, r.pendingRetry = "", 0
				return frame, nil
			}
			if frame.ID != "" {
				r.pendingID = frame.ID
			}
			if frame.Retry != 0 {
				r.pendingRetry = frame.Retry
			}
			frame = Frame{}
			continue
		}

		if line[0] == ':' {
			continue
		}

		field, value := parseLine(line)
		switch field {
		case FieldData:
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case FieldEvent:
			frame.Event = value
		case FieldID:
			if !strings.ContainsRune(value, 0) {
				frame.ID = value
			}
		case FieldRetry:
			if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
				frame.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// splitLines is a bufio.SplitFunc that accepts LF, CRLF and lone CR.
// A CR at the end of the buffered data terminates the line immediately;
// an LF arriving first in the next chunk is then skipped.
func (r *Reader) splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if r.skipLF && len(data) > 0 {
		r.skipLF = false
		if data[0] == '\n' {
			return 1, nil, nil
		}
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		r.skipLF = true
		return i + 1, data[:i], nil
	}
	if atEOF {
		// unterminated final line belongs to an incomplete frame
		return len(data), nil, nil
	}
	return 0, nil, nil
}

func parseLine(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	if value != "" && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}
