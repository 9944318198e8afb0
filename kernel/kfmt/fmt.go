// Package kfmt implements the kernel's console output: a Printf that
// understands a small subset of the fmt verbs and never calls into reflect,
// an early ring buffer that captures output before a sink is attached, and
// Panic, the single exit path for unrecoverable faults.
package kfmt

import "io"

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")
	nilValue        = []byte("<nil>")

	// earlyPrintBuffer stores Printf output until SetOutputSink attaches a
	// real sink.
	earlyPrintBuffer ringBuffer

	// outputSink is where Printf sends its output. If nil, output is
	// redirected to earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf writes a formatted string to the active output sink. It supports
// the following subset of the fmt verbs:
//
//	%s  strings, byte slices and errors
//	%d  base 10 integers
//	%x  base 16 integers, lower-case a-f
//	%o  base 8 integers
//	%t  booleans
//
// Width is specified by an optional decimal number immediately preceding the
// verb. Strings and base-10 integers are left-padded with spaces; base-8 and
// base-16 integers are left-padded with zeroes.
//
// Only the built-in integer types are recognized, so named integer types
// such as page numbers must be converted by the caller (e.g. uint64(ppn)).
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	p := printer{w: w}

	var (
		argIndex int
		litStart int
		fmtLen   = len(format)
	)

	for i := 0; i < fmtLen; i++ {
		if format[i] != '%' {
			continue
		}

		p.write([]byte(format[litStart:i]))

		// Collect the optional width and locate the verb
		width := 0
		i++
		for ; i < fmtLen && format[i] >= '0' && format[i] <= '9'; i++ {
			width = (width * 10) + int(format[i]-'0')
		}

		litStart = i + 1
		if i == fmtLen {
			p.write(errNoVerb)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			p.write([]byte{'%'})
			continue
		case 'd', 'x', 'o', 's', 't':
		default:
			p.write(errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			p.write(errMissingArg)
			continue
		}

		switch verb {
		case 'd':
			p.fmtInt(args[argIndex], 10, width)
		case 'x':
			p.fmtInt(args[argIndex], 16, width)
		case 'o':
			p.fmtInt(args[argIndex], 8, width)
		case 's':
			p.fmtString(args[argIndex], width)
		case 't':
			p.fmtBool(args[argIndex])
		}
		argIndex++
	}

	if litStart < fmtLen {
		p.write([]byte(format[litStart:]))
	}

	for ; argIndex < len(args); argIndex++ {
		p.write(errExtraArg)
	}
}

// printer holds the scratch state for a single Fprintf call.
type printer struct {
	w      io.Writer
	numBuf [maxBufSize + 1]byte
}

func (p *printer) write(b []byte) {
	if len(b) == 0 {
		return
	}

	if p.w != nil {
		p.w.Write(b)
		return
	}
	earlyPrintBuffer.Write(b)
}

func (p *printer) pad(ch byte, count int) {
	for ; count > 0; count-- {
		p.write([]byte{ch})
	}
}

func (p *printer) fmtBool(v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		p.write(errWrongArgType)
	case b:
		p.write(trueValue)
	default:
		p.write(falseValue)
	}
}

func (p *printer) fmtString(v interface{}, width int) {
	switch s := v.(type) {
	case string:
		p.pad(' ', width-len(s))
		p.write([]byte(s))
	case []byte:
		p.pad(' ', width-len(s))
		p.write(s)
	case error:
		if s == nil {
			p.write(nilValue)
			return
		}
		msg := s.Error()
		p.pad(' ', width-len(msg))
		p.write([]byte(msg))
	default:
		p.write(errWrongArgType)
	}
}

// fmtInt prints v in the requested base applying the requested width.
func (p *printer) fmtInt(v interface{}, base uint64, width int) {
	var (
		uval     uint64
		negative bool
		padCh    = byte('0')
	)

	if base == 10 {
		padCh = ' '
	}

	if width >= maxBufSize {
		width = maxBufSize - 1
	}

	switch n := v.(type) {
	case uint8:
		uval = uint64(n)
	case uint16:
		uval = uint64(n)
	case uint32:
		uval = uint64(n)
	case uint64:
		uval = n
	case uint:
		uval = uint64(n)
	case uintptr:
		uval = uint64(n)
	case int8:
		uval, negative = abs(int64(n))
	case int16:
		uval, negative = abs(int64(n))
	case int32:
		uval, negative = abs(int64(n))
	case int64:
		uval, negative = abs(n)
	case int:
		uval, negative = abs(int64(n))
	default:
		p.write(errWrongArgType)
		return
	}

	// Digits are generated right to left
	end := len(p.numBuf)
	start := end
	for {
		digit := byte(uval % base)
		if digit < 10 {
			digit += '0'
		} else {
			digit += 'a' - 10
		}
		start--
		p.numBuf[start] = digit

		if uval /= base; uval == 0 {
			break
		}
	}

	digits := end - start
	if negative {
		digits++
	}

	if padCh == ' ' && negative {
		start--
		p.numBuf[start] = '-'
	}

	for ; digits < width; digits++ {
		start--
		p.numBuf[start] = padCh
	}

	if padCh == '0' && negative {
		start--
		p.numBuf[start] = '-'
	}

	p.write(p.numBuf[start:end])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}
