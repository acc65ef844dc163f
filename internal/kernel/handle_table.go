package kernel

import (
	"fmt"
	"sync"
)

// Handle is a process-scoped reference to a kernel object. Zero is never a
// valid handle.
type Handle uint32

const (
	// MaxHandles is the number of slots in a handle table.
	MaxHandles = 4096

	generationBits = 15
	generationMask = 1<<generationBits - 1
)

func (h Handle) index() int {
	return int(h >> generationBits)
}

func (h Handle) generation() uint16 {
	return uint16(h & generationMask)
}

func makeHandle(idx int, gen uint16) Handle {
	return Handle(uint32(idx)<<generationBits | uint32(gen))
}

type handleEntry struct {
	object     ObjectID
	generation uint16
}

// HandleTable maps handles to objects for one process. Every entry holds one
// owner reference on its object in the arena.
type HandleTable struct {
	arena *Arena

	mu             sync.RWMutex
	entries        [MaxHandles]handleEntry
	nextFree       []int
	nextGeneration uint16
	count          int
}

// NewHandleTable creates an empty table whose entries reference objects in arena
func NewHandleTable(arena *Arena) *HandleTable {
	t := &HandleTable{
		arena:          arena,
		nextFree:       make([]int, 0, MaxHandles),
		nextGeneration: 1,
	}
	for i := MaxHandles - 1; i >= 0; i-- {
		t.nextFree = append(t.nextFree, i)
	}
	return t
}

// Create allocates a fresh handle for obj and retains it.
func (t *HandleTable) Create(obj ObjectID) (Handle, error) {
	if obj.IsNull() {
		return 0, fmt.Errorf("create handle: %w", ErrNullObject)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.nextFree) == 0 {
		return 0, ErrTableFull
	}
	if err := t.arena.Retain(obj); err != nil {
		return 0, fmt.Errorf("create handle: %w", err)
	}

	idx := t.nextFree[len(t.nextFree)-1]
	t.nextFree = t.nextFree[:len(t.nextFree)-1]

	gen := t.nextGeneration
	t.nextGeneration++
	if t.nextGeneration > generationMask {
		t.nextGeneration = 1
	}

	t.entries[idx] = handleEntry{object: obj, generation: gen}
	t.count++
	return makeHandle(idx, gen), nil
}

// Get resolves h, returning ObjectNull when it is not open.
func (t *HandleTable) Get(h Handle) ObjectID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e := t.entry(h)
	if e == nil {
		return ObjectNull
	}
	return e.object
}

// Close removes h and releases its reference.
func (t *HandleTable) Close(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(h)
	if e == nil {
		return fmt.Errorf("close handle %#x: %w", uint32(h), ErrInvalidHandle)
	}
	obj := e.object
	*e = handleEntry{}
	t.nextFree = append(t.nextFree, h.index())
	t.count--

	return t.arena.Release(obj)
}

// Duplicate opens a second handle to the object behind h.
func (t *HandleTable) Duplicate(h Handle) (Handle, error) {
	obj := t.Get(h)
	if obj.IsNull() {
		return 0, fmt.Errorf("duplicate handle %#x: %w", uint32(h), ErrInvalidHandle)
	}
	return t.Create(obj)
}

// Len returns the number of open handles
func (t *HandleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Clear closes every open handle
func (t *HandleTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		e := &t.entries[i]
		if e.generation == 0 {
			continue
		}
		_ = t.arena.Release(e.object)
		*e = handleEntry{}
		t.nextFree = append(t.nextFree, i)
	}
	t.count = 0
}

// entry must be called with t.mu held.
func (t *HandleTable) entry(h Handle) *handleEntry {
	idx := h.index()
	if h == 0 || idx >= MaxHandles {
		return nil
	}
	e := &t.entries[idx]
	if e.generation == 0 || e.generation != h.generation() {
		return nil
	}
	return e
}
