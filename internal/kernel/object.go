package kernel

import (
	"fmt"
	"sync"
)

// ObjectID identifies an object in an Arena. The zero value is the null object.
type ObjectID uint32

// ObjectNull denotes "no object".
const ObjectNull ObjectID = 0

// IsNull reports whether id refers to no object.
func (id ObjectID) IsNull() bool {
	return id == ObjectNull
}

// Object is a kernel object that can be referenced through handles.
type Object interface {
	TypeName() string
	Name() string
}

// ResetType controls how an event clears after being signalled
type ResetType int

const (
	OneShot ResetType = iota
	Sticky
	Pulse
)

// String returns the string representation of the reset type
func (r ResetType) String() string {
	switch r {
	case OneShot:
		return "oneshot"
	case Sticky:
		return "sticky"
	case Pulse:
		return "pulse"
	default:
		return "unknown"
	}
}

// Event is a synchronization object.
type Event struct {
	name      string
	resetType ResetType

	mu       sync.Mutex
	signaled bool
}

// NewEvent creates an unsignaled event
func NewEvent(name string, resetType ResetType) *Event {
	return &Event{name: name, resetType: resetType}
}

func (e *Event) TypeName() string { return "Event" }
func (e *Event) Name() string     { return e.name }

// ResetType returns how the event clears
func (e *Event) ResetType() ResetType { return e.resetType }

// Signal marks the event signaled
func (e *Event) Signal() {
	e.mu.Lock()
	e.signaled = true
	e.mu.Unlock()
}

// Clear resets the event
func (e *Event) Clear() {
	e.mu.Lock()
	e.signaled = false
	e.mu.Unlock()
}

// Signaled reports whether the event is signaled
func (e *Event) Signaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

type slot struct {
	object Object
	refs   uint32
}

// Arena owns every kernel object. Objects are addressed by ObjectID and
// reference counted; an ID is recycled once its count drops to zero.
type Arena struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
}

// NewArena creates an empty arena
func NewArena() *Arena {
	return &Arena{}
}

// Insert stores obj with one owner reference held by the caller.
func (a *Arena) Insert(obj Object) ObjectID {
	if obj == nil {
		panic("kernel: inserting nil object")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = slot{object: obj, refs: 1}
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{object: obj, refs: 1})
	}
	return ObjectID(idx + 1)
}

// Get returns the object for id, or nil if id is null or not live.
func (a *Arena) Get(id ObjectID) Object {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.slot(id)
	if s == nil {
		return nil
	}
	return s.object
}

// Retain adds an owner reference to id.
func (a *Arena) Retain(id ObjectID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.slot(id)
	if s == nil {
		return fmt.Errorf("retain object %d: %w", id, ErrNullObject)
	}
	s.refs++
	return nil
}

// Release drops an owner reference from id, freeing it at zero.
func (a *Arena) Release(id ObjectID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.slot(id)
	if s == nil {
		return fmt.Errorf("release object %d: %w", id, ErrNullObject)
	}
	s.refs--
	if s.refs == 0 {
		s.object = nil
		a.free = append(a.free, uint32(id-1))
	}
	return nil
}

// Refs returns the number of owner references held on id.
func (a *Arena) Refs(id ObjectID) uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.slot(id)
	if s == nil {
		return 0
	}
	return s.refs
}

// Live returns the number of live objects.
func (a *Arena) Live() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.slots) - len(a.free)
}

// slot must be called with a.mu held.
func (a *Arena) slot(id ObjectID) *slot {
	if id.IsNull() || int(id) > len(a.slots) {
		return nil
	}
	s := &a.slots[id-1]
	if s.refs == 0 {
		return nil
	}
	return s
}
