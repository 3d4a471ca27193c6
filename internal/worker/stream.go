package worker

import (
	"bytes"
	"errors"
	"io"
	"os"

	"pkt.systems/ascart/internal/codec"
	"pkt.systems/ascart/internal/framing"
	"pkt.systems/ascart/internal/logx"
	"pkt.systems/pslog"
)

// readOutput frames stdout into lines, decodes each line and dispatches the
// result. Undecodable lines are logged and skipped; the stream keeps going.
// The framer lives for one process run and is cleared when the stream ends.
func (s *Supervisor) readOutput(log pslog.Logger, reader io.Reader) {
	framer := framing.New(s.cfg.MaxLineBytes)
	defer framer.Reset()
	buf := make([]byte, s.cfg.ReadBufferBytes)
	count := 0
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			lines, discarded := framer.Ingest(buf[:n])
			if discarded > 0 {
				log.Warn("worker line discarded", "count", discarded, "max_bytes", s.cfg.MaxLineBytes)
			}
			for _, line := range lines {
				if s.handleLine(log, line) {
					count++
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Warn("worker stdout read failed", "err", err)
			}
			if pending := framer.Buffered(); pending > 0 {
				log.Debug("worker stdout closed mid-line", "buffered", pending)
			}
			log.Debug("worker stdout completed", "messages", count)
			return
		}
	}
}

func (s *Supervisor) handleLine(log pslog.Logger, line []byte) bool {
	if len(bytes.TrimSpace(line)) == 0 {
		return false
	}
	msg, err := codec.Decode(line)
	if err != nil {
		var decodeErr *codec.DecodeError
		if errors.As(err, &decodeErr) {
			log.Warn("worker line decode failed", "preview", decodeErr.Preview, "truncated", decodeErr.Truncated(), "bytes", decodeErr.Size, "err", decodeErr.Err)
		} else {
			log.Warn("worker line decode failed", "err", err)
		}
		return false
	}
	log.Trace("worker message", "kind", msg.Kind, "bytes", len(line))
	s.dispatch(log, msg)
	return true
}

// readDiagnostics logs the worker's stderr line by line. Stderr never feeds
// the message pipeline. Only the head of each line is kept; the rest is
// counted and dropped so an arbitrarily long line never stalls the stream.
func (s *Supervisor) readDiagnostics(log pslog.Logger, reader io.Reader) {
	buf := make([]byte, s.cfg.ReadBufferBytes)
	var line diagnosticLine
	count := 0
	flush := func() {
		if line.size > 0 {
			count++
			preview, truncated := logx.Preview(string(line.head), logx.DefaultPreview)
			log.Info("worker stderr", "text_len", line.size, "preview", preview, "truncated", truncated || line.size > len(line.head))
		}
		line.reset()
	}
	for {
		n, err := reader.Read(buf)
		chunk := buf[:n]
		for len(chunk) > 0 {
			idx := bytes.IndexByte(chunk, '\n')
			if idx < 0 {
				line.add(chunk)
				break
			}
			line.add(chunk[:idx])
			flush()
			chunk = chunk[idx+1:]
		}
		if err != nil {
			flush()
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Warn("worker stderr read failed", "err", err)
			}
			if count > 0 {
				log.Debug("worker stderr completed", "lines", count)
			}
			return
		}
	}
}

// diagnosticHeadBytes bounds the part of a stderr line held for logging.
const diagnosticHeadBytes = 4 * 1024

type diagnosticLine struct {
	head []byte
	size int
}

func (l *diagnosticLine) add(p []byte) {
	l.size += len(p)
	if room := diagnosticHeadBytes - len(l.head); room > 0 {
		l.head = append(l.head, p[:min(room, len(p))]...)
	}
}

func (l *diagnosticLine) reset() {
	l.head = l.head[:0]
	l.size = 0
}
