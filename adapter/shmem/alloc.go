package shmem

import "sort"

// allocator hands out regions of the shared data area with a first-fit free
// list. The host side owns all allocation; the service only dereferences
// offsets it is given.
type allocator struct {
	free []span // sorted by offset, coalesced
}

type span struct {
	off  uint32
	size uint32
}

const allocAlign = 8

func newAllocator(off, size uint32) *allocator {
	return &allocator{free: []span{{off: off, size: size}}}
}

// alloc reserves size bytes, returning the window offset. ok is false when no
// free span is large enough.
func (a *allocator) alloc(size uint32) (uint32, bool) {
	size = (size + allocAlign - 1) &^ uint32(allocAlign-1)

	for i, s := range a.free {
		if s.size < size {
			continue
		}
		off := s.off
		if s.size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{off: s.off + size, size: s.size - size}
		}
		return off, true
	}
	return 0, false
}

// release returns a region and coalesces it with its neighbors.
func (a *allocator) release(off, size uint32) {
	size = (size + allocAlign - 1) &^ uint32(allocAlign-1)

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off >= off })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{off: off, size: size}

	// Merge with the next span, then the previous one.
	if i+1 < len(a.free) && a.free[i].off+a.free[i].size == a.free[i+1].off {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].off+a.free[i-1].size == a.free[i].off {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// largest returns the biggest free span size, for diagnostics.
func (a *allocator) largest() uint32 {
	var max uint32
	for _, s := range a.free {
		if s.size > max {
			max = s.size
		}
	}
	return max
}
