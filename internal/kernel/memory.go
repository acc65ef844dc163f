package kernel

import (
	"fmt"
	"sort"
	"sync"
)

// VAddr is a guest virtual address.
type VAddr uint32

// After returns the address size bytes past addr.
func (addr VAddr) After(size uint32) uint64 {
	return uint64(addr) + uint64(size)
}

// Permission is a set of access rights on a mapped block.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite

	PermReadWrite = PermRead | PermWrite
)

// String returns the string representation of the permission
func (p Permission) String() string {
	r, w := "-", "-"
	if p&PermRead != 0 {
		r = "r"
	}
	if p&PermWrite != 0 {
		w = "w"
	}
	return r + w
}

// MemoryState tags what a mapped block is used for.
type MemoryState int

const (
	MemoryPrivate MemoryState = iota
	MemoryShared
	MemoryIO
)

// Block is one contiguous mapped region backed by a host byte slice.
type Block struct {
	Start VAddr
	Size  uint32
	Perm  Permission
	State MemoryState

	backing []byte
}

// End returns the first address past the block.
func (b *Block) End() uint64 {
	return b.Start.After(b.Size)
}

// Overlaps reports whether the block intersects [start, start+size).
func (b *Block) Overlaps(start VAddr, size uint32) bool {
	return uint64(b.Start) < start.After(size) && uint64(start) < b.End()
}

// Contains reports whether addr falls inside the block.
func (b *Block) Contains(addr uint64) bool {
	return uint64(b.Start) <= addr && addr < b.End()
}

// AddressSpace is the virtual memory of one process: a sorted set of
// non-overlapping blocks.
type AddressSpace struct {
	mu     sync.RWMutex
	blocks []*Block
}

// NewAddressSpace creates an empty address space
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// MapBlock maps size bytes of backing, starting at offset, at addr. The
// backing slice is shared, not copied: writes through the address space are
// visible to its owner.
func (as *AddressSpace) MapBlock(addr VAddr, backing []byte, offset, size int, perm Permission, state MemoryState) error {
	if size <= 0 || offset < 0 || offset+size > len(backing) {
		return fmt.Errorf("map %#x: invalid backing range [%d, %d) of %d bytes", uint32(addr), offset, offset+size, len(backing))
	}
	if addr.After(uint32(size)) > 1<<32 {
		return fmt.Errorf("map %#x+%#x: address overflow", uint32(addr), size)
	}

	block := &Block{
		Start:   addr,
		Size:    uint32(size),
		Perm:    perm,
		State:   state,
		backing: backing[offset : offset+size],
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	for _, b := range as.blocks {
		if b.Overlaps(addr, block.Size) {
			return fmt.Errorf("map %#x+%#x: %w", uint32(addr), size, ErrOverlap)
		}
	}
	as.blocks = append(as.blocks, block)
	sort.Slice(as.blocks, func(i, j int) bool {
		return as.blocks[i].Start < as.blocks[j].Start
	})
	return nil
}

// UnmapRange removes the block that exactly covers [addr, addr+size).
func (as *AddressSpace) UnmapRange(addr VAddr, size uint32) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	for i, b := range as.blocks {
		if b.Start == addr && b.Size == size {
			as.blocks = append(as.blocks[:i], as.blocks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unmap %#x+%#x: %w", uint32(addr), size, ErrUnmapped)
}

// Reprotect changes the permissions of the block starting at addr.
func (as *AddressSpace) Reprotect(addr VAddr, perm Permission) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	for _, b := range as.blocks {
		if b.Start == addr {
			b.Perm = perm
			return nil
		}
	}
	return fmt.Errorf("reprotect %#x: %w", uint32(addr), ErrUnmapped)
}

// Read copies length bytes starting at addr into a fresh slice.
func (as *AddressSpace) Read(addr VAddr, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("read %#x: negative length %d", uint32(addr), length)
	}
	out := make([]byte, length)

	as.mu.RLock()
	defer as.mu.RUnlock()

	err := as.walk(addr, length, PermRead, func(b *Block, off uint32, n int, done int) {
		copy(out[done:done+n], b.backing[off:])
	})
	if err != nil {
		return nil, fmt.Errorf("read %#x+%#x: %w", uint32(addr), length, err)
	}
	return out, nil
}

// Write copies data into memory at addr. Nothing is written unless the whole
// range is mapped writable.
func (as *AddressSpace) Write(addr VAddr, data []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	err := as.walk(addr, len(data), PermWrite, func(b *Block, off uint32, n int, done int) {
		copy(b.backing[off:off+uint32(n)], data[done:done+n])
	})
	if err != nil {
		return fmt.Errorf("write %#x+%#x: %w", uint32(addr), len(data), err)
	}
	return nil
}

// IsValidRange reports whether [addr, addr+length) is mapped with perm.
func (as *AddressSpace) IsValidRange(addr VAddr, length int, perm Permission) bool {
	as.mu.RLock()
	defer as.mu.RUnlock()

	return as.walk(addr, length, perm, func(*Block, uint32, int, int) {}) == nil
}

// Blocks returns a snapshot of the mapped blocks in address order.
func (as *AddressSpace) Blocks() []Block {
	as.mu.RLock()
	defer as.mu.RUnlock()

	out := make([]Block, len(as.blocks))
	for i, b := range as.blocks {
		out[i] = *b
		out[i].backing = nil
	}
	return out
}

// walk visits each block piece covering [addr, addr+length), failing before
// any visit if a gap or a permission mismatch is found. Must be called with
// as.mu held.
func (as *AddressSpace) walk(addr VAddr, length int, perm Permission, visit func(b *Block, off uint32, n int, done int)) error {
	type piece struct {
		block *Block
		off   uint32
		n     int
	}

	var pieces []piece
	cur := uint64(addr)
	end := cur + uint64(length)
	for cur < end {
		b := as.find(cur)
		if b == nil {
			return ErrUnmapped
		}
		if b.Perm&perm != perm {
			return ErrPermission
		}
		n := b.End() - cur
		if rest := end - cur; rest < n {
			n = rest
		}
		pieces = append(pieces, piece{block: b, off: uint32(cur - uint64(b.Start)), n: int(n)})
		cur += n
	}

	done := 0
	for _, p := range pieces {
		visit(p.block, p.off, p.n, done)
		done += p.n
	}
	return nil
}

// find must be called with as.mu held.
func (as *AddressSpace) find(addr uint64) *Block {
	i := sort.Search(len(as.blocks), func(i int) bool {
		return as.blocks[i].End() > addr
	})
	if i < len(as.blocks) && as.blocks[i].Contains(addr) {
		return as.blocks[i]
	}
	return nil
}
