// Package framing splits a byte stream into newline-delimited lines.
package framing

import "bytes"

const delimiter = '\n'

// LineFramer accumulates stream chunks and yields complete lines.
//
// After every Ingest the buffer holds exactly the unterminated suffix of the
// bytes seen so far. Every terminated line is returned once, in arrival
// order. LineFramer is not safe for concurrent use; the reader that owns the
// stream owns the framer.
type LineFramer struct {
	buf        []byte
	max        int
	discarding bool
}

// New returns a framer. maxLine bounds a single line in bytes; zero or less
// means unbounded. Lines over the bound are discarded whole and framing
// resumes at the next delimiter.
func New(maxLine int) *LineFramer {
	if maxLine < 0 {
		maxLine = 0
	}
	return &LineFramer{max: maxLine}
}

// Ingest appends chunk and returns every line it completed, without the
// delimiter. discarded counts oversized lines dropped during this call.
func (f *LineFramer) Ingest(chunk []byte) (lines [][]byte, discarded int) {
	for {
		idx := bytes.IndexByte(chunk, delimiter)
		if idx < 0 {
			break
		}
		segment := chunk[:idx]
		chunk = chunk[idx+1:]
		if f.discarding {
			f.discarding = false
			discarded++
			continue
		}
		if f.max > 0 && len(f.buf)+len(segment) > f.max {
			f.release()
			discarded++
			continue
		}
		line := make([]byte, 0, len(f.buf)+len(segment))
		line = append(line, f.buf...)
		line = append(line, segment...)
		lines = append(lines, line)
		f.buf = f.buf[:0]
	}
	if f.discarding || len(chunk) == 0 {
		return lines, discarded
	}
	f.buf = append(f.buf, chunk...)
	if f.max > 0 && len(f.buf) > f.max {
		f.release()
		f.discarding = true
	}
	return lines, discarded
}

// Buffered returns the number of bytes held for an unterminated line.
func (f *LineFramer) Buffered() int {
	return len(f.buf)
}

// Reset drops any partial line.
func (f *LineFramer) Reset() {
	f.release()
	f.discarding = false
}

func (f *LineFramer) release() {
	if cap(f.buf) > 64*1024 {
		f.buf = nil
		return
	}
	f.buf = f.buf[:0]
}
