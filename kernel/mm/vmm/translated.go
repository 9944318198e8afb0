package vmm

import (
	"io"
	"sv39os/kernel"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/physmem"
	"unsafe"
)

var (
	// ErrInvalidMapping is returned when a user address is not mapped in
	// the address space it is resolved against.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrStraddlesPage is returned when a value that must be accessed in
	// place crosses a page boundary.
	ErrStraddlesPage = &kernel.Error{Module: "vmm", Message: "value crosses a page boundary"}

	// ErrMisaligned is returned when a value is not aligned to the
	// requirements of its type.
	ErrMisaligned = &kernel.Error{Module: "vmm", Message: "value is not properly aligned"}
)

// Span is a contiguous run of physical memory.
type Span struct {
	Addr mm.PhysAddr
	Len  uint64
}

// Bytes returns the memory covered by the span.
func (s Span) Bytes() []byte {
	return physmem.Bytes(s.Addr, s.Len)
}

// TranslatedByteBuffer resolves the length bytes starting at the user
// address ptr in the address space identified by token. The result holds
// one span per touched page, in address order.
func TranslatedByteBuffer(token, ptr, length uint64) ([]Span, *kernel.Error) {
	var (
		pt    = FromToken(token)
		spans []Span
		end   = ptr + length
	)

	if end < ptr {
		return nil, ErrInvalidMapping
	}

	for start := ptr; start < end; {
		pa, ok := pt.TranslateVA(mm.NewVirtAddr(start))
		if !ok {
			return nil, ErrInvalidMapping
		}

		pageEnd := start&^(mm.PageSize-1) + mm.PageSize
		if pageEnd > end || pageEnd < start {
			pageEnd = end
		}

		spans = append(spans, Span{Addr: pa, Len: pageEnd - start})
		start = pageEnd
	}

	return spans, nil
}

// TranslatedStr reads the NUL-terminated string at the user address ptr in
// the address space identified by token.
func TranslatedStr(token, ptr uint64) (string, *kernel.Error) {
	var (
		pt  = FromToken(token)
		buf []byte
	)

	for va := ptr; ; {
		pa, ok := pt.TranslateVA(mm.NewVirtAddr(va))
		if !ok {
			return "", ErrInvalidMapping
		}

		// Scan up to the end of the current page.
		chunk := physmem.Bytes(pa, mm.PageSize-mm.NewVirtAddr(va).PageOffset())
		for i, b := range chunk {
			if b == 0 {
				return string(append(buf, chunk[:i]...)), nil
			}
		}

		buf = append(buf, chunk...)
		va += uint64(len(chunk))
	}
}

// translatedValue resolves the address of a T stored at the user address ptr.
func translatedValue[T any](token, ptr uint64) (unsafe.Pointer, *kernel.Error) {
	var zero T
	size, align := uint64(unsafe.Sizeof(zero)), uint64(unsafe.Alignof(zero))

	if ptr%align != 0 {
		return nil, ErrMisaligned
	}
	if mm.NewVirtAddr(ptr).PageOffset()+size > mm.PageSize {
		return nil, ErrStraddlesPage
	}

	pa, ok := FromToken(token).TranslateVA(mm.NewVirtAddr(ptr))
	if !ok {
		return nil, ErrInvalidMapping
	}

	if size == 0 {
		return unsafe.Pointer(&zero), nil
	}
	return unsafe.Pointer(&physmem.Bytes(pa, size)[0]), nil
}

// TranslatedRef returns a copy of the T stored at the user address ptr. T
// must not contain Go pointers.
func TranslatedRef[T any](token, ptr uint64) (T, *kernel.Error) {
	var zero T

	p, err := translatedValue[T](token, ptr)
	if err != nil {
		return zero, err
	}

	return *(*T)(p), nil
}

// TranslatedRefMut returns a pointer through which the kernel can modify the
// T stored at the user address ptr. T must not contain Go pointers.
func TranslatedRefMut[T any](token, ptr uint64) (*T, *kernel.Error) {
	p, err := translatedValue[T](token, ptr)
	if err != nil {
		return nil, err
	}

	return (*T)(p), nil
}

// UserBuffer presents a list of spans, typically obtained from
// TranslatedByteBuffer, as a single stream of bytes.
type UserBuffer struct {
	spans []Span

	// span and offset track the read/write position.
	span   int
	offset uint64
}

// NewUserBuffer returns a buffer positioned at the first byte of spans.
func NewUserBuffer(spans []Span) *UserBuffer {
	return &UserBuffer{spans: spans}
}

// Len returns the total number of bytes covered by the buffer.
func (b *UserBuffer) Len() int {
	var n uint64
	for _, s := range b.spans {
		n += s.Len
	}
	return int(n)
}

// Read copies bytes from the current position into p. It returns io.EOF
// once the whole buffer has been consumed.
func (b *UserBuffer) Read(p []byte) (int, error) {
	n := b.transfer(p, func(user, kern []byte) int { return copy(kern, user) })
	if n == 0 && len(p) != 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write copies p into the buffer starting at the current position. It
// returns io.ErrShortWrite if the buffer fills up before p is consumed.
func (b *UserBuffer) Write(p []byte) (int, error) {
	n := b.transfer(p, func(user, kern []byte) int { return copy(user, kern) })
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Reset rewinds the buffer to its first byte.
func (b *UserBuffer) Reset() {
	b.span, b.offset = 0, 0
}

func (b *UserBuffer) transfer(p []byte, copyFn func(user, kern []byte) int) int {
	var n int
	for n < len(p) && b.span < len(b.spans) {
		s := b.spans[b.span]
		copied := copyFn(s.Bytes()[b.offset:], p[n:])
		n += copied
		b.offset += uint64(copied)

		if b.offset == s.Len {
			b.span, b.offset = b.span+1, 0
		}
	}
	return n
}
