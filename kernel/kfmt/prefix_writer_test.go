package kfmt

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		input []string
		exp   string
	}{
		{nil, ""},
		{[]string{"\n"}, "[vm] \n"},
		{[]string{"no line feed"}, "[vm] no line feed"},
		{[]string{"map 0x1000\n", "unmap 0x1000\n"}, "[vm] map 0x1000\n[vm] unmap 0x1000\n"},
		{[]string{"split ", "across writes\nnext"}, "[vm] split across writes\n[vm] next"},
		{[]string{"\n\nthree\n"}, "[vm] \n[vm] \n[vm] three\n"},
	}

	for specIndex, spec := range specs {
		var buf bytes.Buffer
		w := &PrefixWriter{Sink: &buf, Prefix: []byte("[vm] ")}

		for _, in := range spec.input {
			wrote, err := w.Write([]byte(in))
			if err != nil {
				t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			}
			if wrote != len(in) {
				t.Errorf("[spec %d] expected writer to write %d bytes; wrote %d", specIndex, len(in), wrote)
			}
		}

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, spec.exp, got)
		}
	}
}

type failingWriter struct {
	failAfter int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.failAfter == 0 {
		return 0, errors.New("sink closed")
	}
	w.failAfter--
	return len(p), nil
}

func TestPrefixWriterErrors(t *testing.T) {
	for failAfter := 0; failAfter < 2; failAfter++ {
		w := &PrefixWriter{Sink: &failingWriter{failAfter: failAfter}, Prefix: []byte("> ")}
		if _, err := w.Write([]byte("line\n")); err == nil {
			t.Errorf("[failAfter %d] expected an error", failAfter)
		}
	}
}
