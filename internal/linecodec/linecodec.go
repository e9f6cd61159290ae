// Package linecodec frames newline-delimited JSON documents on a byte stream.
//
// A Reader yields one non-blank line at a time and enforces a byte cap per
// line. A Writer emits one document per line and flushes it immediately, since
// the peer blocks on a read expecting exactly one line per response.
package linecodec

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

// DefaultMaxLineBytes is the default per-line cap (1 MiB).
const DefaultMaxLineBytes = 1 << 20

// ErrLineTooLong is returned by ReadLine when a line exceeds the configured
// cap. The cap counts line content only, not a trailing '\r' or the leading
// BOM. The rest of that line has been discarded; the next ReadLine starts at
// the following line.
var ErrLineTooLong = errors.New("linecodec: line exceeds maximum size")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Reader reads newline-delimited lines. It is not safe for concurrent use.
type Reader struct {
	br       *bufio.Reader
	max      int
	sawFirst bool
	buf      []byte
}

// NewReader returns a Reader over r. A non-positive maxLineBytes selects
// DefaultMaxLineBytes.
func NewReader(r io.Reader, maxLineBytes int) *Reader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Reader{br: bufio.NewReaderSize(r, 64*1024), max: maxLineBytes}
}

// ReadLine returns the next non-blank line without its terminator. The
// returned slice is only valid until the next call. At end of stream it
// returns io.EOF; a final unterminated line is returned before that.
func (r *Reader) ReadLine() ([]byte, error) {
	for {
		line, err := r.readRaw()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if !r.sawFirst {
			r.sawFirst = true
			line = bytes.TrimPrefix(line, utf8BOM)
		}
		line = bytes.TrimRight(line, "\r")
		if len(line) > r.max {
			return nil, ErrLineTooLong
		}
		if len(bytes.TrimSpace(line)) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// readRaw reads up to and excluding the next '\n'. When the accumulated line
// cannot fit the cap even after ReadLine strips a trailing '\r' and a leading
// BOM, it drains the remainder and reports ErrLineTooLong.
func (r *Reader) readRaw() ([]byte, error) {
	limit := r.max + 1
	if !r.sawFirst {
		limit += len(utf8BOM)
	}
	r.buf = r.buf[:0]
	for {
		chunk, err := r.br.ReadSlice('\n')
		content := len(chunk)
		if err == nil {
			content--
		}
		if len(r.buf)+content > limit {
			r.sawFirst = true
			if errors.Is(err, bufio.ErrBufferFull) {
				if derr := r.discardLine(); derr != nil && !errors.Is(derr, io.EOF) {
					return nil, derr
				}
			}
			return nil, ErrLineTooLong
		}
		r.buf = append(r.buf, chunk...)
		switch {
		case err == nil:
			return r.buf[:len(r.buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return r.buf, io.EOF
		default:
			return nil, err
		}
	}
}

func (r *Reader) discardLine() error {
	for {
		_, err := r.br.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// Writer writes one document per line and flushes after each line. It is safe
// for concurrent use; whole lines never interleave.
type Writer struct {
	mu sync.Mutex
	bw *bufio.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteLine writes doc followed by '\n' and flushes. doc must not contain a
// raw newline.
func (w *Writer) WriteLine(doc []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.bw.Write(doc); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	return w.bw.Flush()
}
