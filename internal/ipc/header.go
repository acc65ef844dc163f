package ipc

const (
	// CommandBufferLength is the number of words in a command buffer.
	CommandBufferLength = 0x100 / 4

	// PageSize is the guest page size in bytes.
	PageSize = 0x1000

	// MaxNormalCount is the largest value the normal count field can hold.
	MaxNormalCount = 0x3F

	// MaxTranslateCount is the largest value the translate count field can hold.
	MaxTranslateCount = 0x3F
)

const (
	translateShift = 0
	normalShift    = 6
	reservedShift  = 12
	commandShift   = 16

	countMask    = 0x3F
	reservedMask = 0xF
	commandMask  = 0xFFFF
)

// Header is the decoded form of a command buffer's first word.
type Header struct {
	Command   uint16
	Normal    uint32
	Translate uint32
	Reserved  uint32
}

// Words returns the total number of words the header declares, itself included.
func (h Header) Words() int {
	return 1 + int(h.Normal) + int(h.Translate)
}

// Encode packs the header back into a word. Reserved bits are preserved.
func (h Header) Encode() uint32 {
	return EncodeHeader(h.Command, h.Normal, h.Translate) |
		(h.Reserved&reservedMask)<<reservedShift
}

// EncodeHeader packs a command id and the two parameter counts into a header
// word. Counts wider than six bits are truncated.
func EncodeHeader(command uint16, normal, translate uint32) uint32 {
	return uint32(command)<<commandShift |
		(normal&countMask)<<normalShift |
		(translate&countMask)<<translateShift
}

// MakeHeader is shorthand for EncodeHeader taking untyped integers.
func MakeHeader(command, normal, translate int) uint32 {
	return EncodeHeader(uint16(command), uint32(normal), uint32(translate))
}

// DecodeHeader unpacks a header word into its command id and counts.
func DecodeHeader(word uint32) (command uint16, normal, translate uint32) {
	h := ParseHeader(word)
	return h.Command, h.Normal, h.Translate
}

// ParseHeader unpacks every field of a header word, including the reserved bits.
func ParseHeader(word uint32) Header {
	return Header{
		Command:   uint16((word >> commandShift) & commandMask),
		Normal:    (word >> normalShift) & countMask,
		Translate: (word >> translateShift) & countMask,
		Reserved:  (word >> reservedShift) & reservedMask,
	}
}
