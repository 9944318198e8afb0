package heap

import "math/bits"

const (
	// numOrders bounds the largest block the allocator can track (2^31).
	numOrders = 32

	// minBlockShift is log2 of the smallest block; a free block must be able
	// to hold the offset of the next free block.
	minBlockShift = 3

	// nilBlock terminates a free list.
	nilBlock = ^uint64(0)
)

// buddyAllocator manages a region of words with a binary buddy system.
// Every free block stores the offset of the next free block of the same
// order in its first word, so the allocator needs no memory of its own.
// Offsets are byte offsets from the start of the region.
type buddyAllocator struct {
	words     []uint64
	freeLists [numOrders]uint64

	// user is the number of bytes requested by callers, allocated the
	// number of bytes handed out after rounding and total the size of the
	// region.
	user, allocated, total uint64
}

func (b *buddyAllocator) init(words []uint64) {
	b.words = words
	for order := range b.freeLists {
		b.freeLists[order] = nilBlock
	}
	b.user, b.allocated, b.total = 0, 0, 0
	b.addRegion(0, uint64(len(words))<<minBlockShift)
}

// addRegion splits [start, end) into the largest naturally aligned blocks
// that fit and pushes them onto the free lists.
func (b *buddyAllocator) addRegion(start, end uint64) {
	start = (start + (1 << minBlockShift) - 1) &^ ((1 << minBlockShift) - 1)
	end &^= (1 << minBlockShift) - 1

	for start+(1<<minBlockShift) <= end {
		size := prevPowerOfTwo(end - start)
		if start != 0 {
			if lowbit := start & -start; lowbit < size {
				size = lowbit
			}
		}

		b.push(uint(bits.TrailingZeros64(size)), start)
		b.total += size
		start += size
	}
}

// blockClass returns the block size and order used to satisfy a request.
func blockClass(size, align uint64) (uint64, uint) {
	class := nextPowerOfTwo(size)
	if align > class {
		class = align
	}
	if class < 1<<minBlockShift {
		class = 1 << minBlockShift
	}
	return class, uint(bits.TrailingZeros64(class))
}

// alloc returns the offset of a block able to hold size bytes at the
// requested alignment or false if no such block is available.
func (b *buddyAllocator) alloc(size, align uint64) (uint64, bool) {
	class, order := blockClass(size, align)
	if order >= numOrders {
		return 0, false
	}

	for i := order; i < numOrders; i++ {
		if b.freeLists[i] == nilBlock {
			continue
		}

		// Split the block until we reach the requested order; the lower
		// half is always the one that gets split further.
		for j := i; j > order; j-- {
			block := b.pop(j)
			b.push(j-1, block+(1<<(j-1)))
			b.push(j-1, block)
		}

		offset := b.pop(order)
		b.user += size
		b.allocated += class
		return offset, true
	}

	return 0, false
}

// free returns a block obtained by alloc(size, align) and coalesces it with
// its buddy for as long as the buddy is also free.
func (b *buddyAllocator) free(offset, size, align uint64) bool {
	class, order := blockClass(size, align)
	if offset%class != 0 || offset+class > uint64(len(b.words))<<minBlockShift {
		return false
	}

	b.user -= size
	b.allocated -= class

	current := offset
	for ; order < numOrders-1; order++ {
		buddy := current ^ (1 << order)
		if !b.remove(order, buddy) {
			break
		}

		if buddy < current {
			current = buddy
		}
	}

	b.push(order, current)
	return true
}

func (b *buddyAllocator) push(order uint, offset uint64) {
	b.words[offset>>minBlockShift] = b.freeLists[order]
	b.freeLists[order] = offset
}

func (b *buddyAllocator) pop(order uint) uint64 {
	offset := b.freeLists[order]
	b.freeLists[order] = b.words[offset>>minBlockShift]
	return offset
}

// remove unlinks the block at offset from the free list of the given order
// and reports whether it was found.
func (b *buddyAllocator) remove(order uint, offset uint64) bool {
	if offset >= uint64(len(b.words))<<minBlockShift {
		return false
	}

	for prev, cur := nilBlock, b.freeLists[order]; cur != nilBlock; prev, cur = cur, b.words[cur>>minBlockShift] {
		if cur != offset {
			continue
		}

		next := b.words[cur>>minBlockShift]
		if prev == nilBlock {
			b.freeLists[order] = next
		} else {
			b.words[prev>>minBlockShift] = next
		}
		return true
	}

	return false
}

func nextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(v-1))
}

func prevPowerOfTwo(v uint64) uint64 {
	return 1 << (63 - bits.LeadingZeros64(v))
}
