package marker

import "bytes"

// LineSplitter cuts a chunked byte stream into lines.
//
// Each Feed appends the chunk to the carried-over partial line and returns
// every line whose terminating '\n' has now been seen. The unterminated
// tail stays buffered for the next Feed; Rest returns it once the stream
// has ended. Lines never include the '\n'; a '\r' before it is kept.
type LineSplitter struct {
	buf []byte
}

// Feed consumes one chunk and returns the lines it completed.
func (s *LineSplitter) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(s.buf[start:], '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(s.buf[start:start+i]))
		start += i + 1
	}
	s.buf = append(s.buf[:0], s.buf[start:]...)
	return lines
}

// Rest returns the buffered partial line (without a terminating newline).
func (s *LineSplitter) Rest() string {
	return string(s.buf)
}
