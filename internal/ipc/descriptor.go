package ipc

import "fmt"

// Descriptor type bits as they appear in the low byte of a descriptor word.
const (
	tagStaticBuffer uint32 = 0x02

	tagCopyHandle uint32 = 0x00
	tagMoveHandle uint32 = 0x10
	tagCallingPid uint32 = 0x20

	bufferTypeMask uint32 = 0x0F
	handleTypeMask uint32 = 0x30
)

const (
	handleCountShift = 26

	staticIDShift   = 10
	staticIDMask    = 0xF
	staticSizeShift = 14
	staticSizeMask  = 0x3FFFF

	// MaxHandlesPerDescriptor is the largest count a handle list can declare.
	MaxHandlesPerDescriptor = 64

	// MaxStaticBufferID is the largest buffer id a static buffer descriptor can carry.
	MaxStaticBufferID = staticIDMask

	// MaxStaticBufferSize is the largest byte size a static buffer descriptor can carry.
	MaxStaticBufferSize = staticSizeMask
)

// HandleMode selects how a handle list transfers its objects.
type HandleMode uint8

const (
	// Copy leaves the sender's handle valid.
	Copy HandleMode = iota
	// Move closes the sender's handle once the object is resolved.
	Move
)

// String returns the string representation of the mode
func (m HandleMode) String() string {
	switch m {
	case Copy:
		return "copy"
	case Move:
		return "move"
	default:
		return "unknown"
	}
}

// Descriptor is one of RawData, HandleList, CallingPid or StaticBuffer.
// The set is closed: the guest ABI fixes it.
type Descriptor interface {
	fmt.Stringer

	// Payload is the number of words following the descriptor word.
	Payload() int
	// Kind names the variant for logs and metrics.
	Kind() string

	descriptor()
}

// RawData is any word that is not a recognised descriptor.
type RawData struct {
	Word uint32
}

// HandleList is followed by Count handle words.
type HandleList struct {
	Mode  HandleMode
	Count int
}

// CallingPid is followed by one word the kernel overwrites with the caller's process id.
type CallingPid struct{}

// StaticBuffer is followed by one word holding a virtual address.
type StaticBuffer struct {
	Size uint32
	ID   uint8
}

func (RawData) Payload() int      { return 0 }
func (d HandleList) Payload() int { return d.Count }
func (CallingPid) Payload() int   { return 1 }
func (StaticBuffer) Payload() int { return 1 }

func (RawData) Kind() string      { return "raw" }
func (HandleList) Kind() string   { return "handles" }
func (CallingPid) Kind() string   { return "calling_pid" }
func (StaticBuffer) Kind() string { return "static_buffer" }

func (RawData) descriptor()      {}
func (HandleList) descriptor()   {}
func (CallingPid) descriptor()   {}
func (StaticBuffer) descriptor() {}

func (d RawData) String() string { return fmt.Sprintf("raw(%#08x)", d.Word) }
func (d HandleList) String() string {
	return fmt.Sprintf("%s_handles(%d)", d.Mode, d.Count)
}
func (CallingPid) String() string { return "calling_pid" }
func (d StaticBuffer) String() string {
	return fmt.Sprintf("static_buffer(id=%d, size=%#x)", d.ID, d.Size)
}

// Classify decodes a descriptor word. It is total: unrecognised words are RawData.
//
// Handle descriptors are checked first since their low nibble is zero; the
// buffer kinds are told apart by their low nibble afterwards.
func Classify(word uint32) Descriptor {
	if word&bufferTypeMask == 0 {
		switch word & handleTypeMask {
		case tagCopyHandle:
			return HandleList{Mode: Copy, Count: handleCount(word)}
		case tagMoveHandle:
			return HandleList{Mode: Move, Count: handleCount(word)}
		case tagCallingPid:
			if word == tagCallingPid {
				return CallingPid{}
			}
		}
		return RawData{Word: word}
	}
	if word&bufferTypeMask == tagStaticBuffer {
		return StaticBuffer{
			Size: (word >> staticSizeShift) & staticSizeMask,
			ID:   uint8((word >> staticIDShift) & staticIDMask),
		}
	}
	// Mapped and PXI buffers are not translated by this layer.
	return RawData{Word: word}
}

func handleCount(word uint32) int {
	return int(word>>handleCountShift) + 1
}

// MoveHandleDesc builds a handle list descriptor moving n handles.
func MoveHandleDesc(n int) uint32 {
	return tagMoveHandle | handleCountBits(n)
}

// CopyHandleDesc builds a handle list descriptor copying n handles.
func CopyHandleDesc(n int) uint32 {
	return tagCopyHandle | handleCountBits(n)
}

// HandleDesc builds a handle list descriptor for the given mode.
func HandleDesc(mode HandleMode, n int) uint32 {
	if mode == Move {
		return MoveHandleDesc(n)
	}
	return CopyHandleDesc(n)
}

func handleCountBits(n int) uint32 {
	if n < 1 || n > MaxHandlesPerDescriptor {
		panic(fmt.Sprintf("ipc: invalid handle count: %d", n))
	}
	return uint32(n-1) << handleCountShift
}

// CallingPidDesc returns the calling pid descriptor word.
func CallingPidDesc() uint32 {
	return tagCallingPid
}

// StaticBufferDesc builds a static buffer descriptor. Size and id are
// truncated to their field widths.
func StaticBufferDesc(size int, id uint8) uint32 {
	return tagStaticBuffer |
		(uint32(id)&staticIDMask)<<staticIDShift |
		(uint32(size)&staticSizeMask)<<staticSizeShift
}

// Encode turns a descriptor back into its word.
func Encode(d Descriptor) uint32 {
	switch d := d.(type) {
	case RawData:
		return d.Word
	case HandleList:
		return HandleDesc(d.Mode, d.Count)
	case CallingPid:
		return CallingPidDesc()
	case StaticBuffer:
		return StaticBufferDesc(int(d.Size), d.ID)
	default:
		panic(fmt.Sprintf("ipc: unknown descriptor %T", d))
	}
}
