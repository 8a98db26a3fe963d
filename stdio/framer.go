package stdio

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// frameReader yields one newline-terminated frame at a time. It buffers
// internally, so a frame delivered byte-by-byte and several frames delivered
// in one read both come out as complete messages. Blank lines are skipped.
type frameReader struct {
	br *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{br: bufio.NewReader(r)}
}

// next returns the next non-empty frame without its trailing newline. A final
// unterminated frame before EOF is returned first; the EOF surfaces on the
// following call.
func (fr *frameReader) next() ([]byte, error) {
	for {
		line, err := fr.br.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			if err == io.EOF {
				err = nil
			}
			return line, err
		}
		if err != nil {
			return nil, err
		}
	}
}

// frameWriter serializes writes so concurrent responders never interleave
// bytes. Each frame goes out as a single Write of message + newline.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

func (fw *frameWriter) writeFrame(msg []byte) error {
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}
