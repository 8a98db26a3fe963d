package stdio

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
)

func TestFrameReaderByteAtATime(t *testing.T) {
	src := iotest.OneByteReader(strings.NewReader("{\"a\":1}\n{\"b\":2}\n"))
	fr := newFrameReader(src)

	first, err := fr.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(first) != `{"a":1}` {
		t.Fatalf("first = %q", first)
	}

	second, err := fr.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(second) != `{"b":2}` {
		t.Fatalf("second = %q", second)
	}

	if _, err := fr.next(); err != io.EOF {
		t.Fatalf("err = %v, want EOF", err)
	}
}

func TestFrameReaderSkipsBlankLinesAndCRLF(t *testing.T) {
	fr := newFrameReader(strings.NewReader("\n\r\n{\"a\":1}\r\n\n{\"b\":2}"))

	first, err := fr.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(first) != `{"a":1}` {
		t.Fatalf("first = %q", first)
	}

	// Final frame has no trailing newline; it is still delivered before EOF.
	second, err := fr.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(second) != `{"b":2}` {
		t.Fatalf("second = %q", second)
	}

	if _, err := fr.next(); err != io.EOF {
		t.Fatalf("err = %v, want EOF", err)
	}
}

func TestFrameWriterConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	fw := newFrameWriter(&buf)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			msg := fmt.Sprintf(`{"id":%d,"pad":%q}`, n, strings.Repeat("x", 512))
			if err := fw.writeFrame([]byte(msg)); err != nil {
				t.Errorf("writeFrame: %v", err)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != writers {
		t.Fatalf("got %d lines, want %d", len(lines), writers)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, `{"id":`) || !strings.HasSuffix(line, `"}`) {
			t.Fatalf("interleaved frame: %q", line)
		}
	}
}
