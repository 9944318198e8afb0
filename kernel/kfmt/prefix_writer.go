package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter forwards writes to Sink and emits Prefix in front of every
// line. The prefix is not counted in the byte count returned by Write.
type PrefixWriter struct {
	Sink   io.Writer
	Prefix []byte

	// midLine is set while the last byte forwarded to Sink was not a line
	// feed.
	midLine bool
}

// Write implements io.Writer.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) != 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		line := p
		if idx := bytes.IndexByte(p, '\n'); idx != -1 {
			line = p[:idx+1]
			w.midLine = false
		}

		n, err := w.Sink.Write(line)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(line):]
	}

	return written, nil
}
