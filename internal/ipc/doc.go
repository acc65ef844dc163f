// Package ipc implements the guest-visible wire format of IPC command buffers.
//
// A command buffer is a fixed-length sequence of 32-bit words. Word 0 is the
// header, followed by the raw ("normal") parameter words and then the
// translate section, a run of descriptors each followed by its payload words.
//
// Header Layout:
//   - bits 0..5:   translate section word count
//   - bits 6..11:  normal parameter word count
//   - bits 12..15: reserved, zero
//   - bits 16..31: command identifier
//
// Descriptors:
//   - HandleList: Move or Copy, followed by 1..64 handle words
//   - CallingPid: followed by one placeholder word replaced by the kernel
//   - StaticBuffer: buffer id and byte size, followed by one address word
//   - RawData: any other word, occupies a single word
//
// Example Usage:
//
//	words := []uint32{
//	    ipc.MakeHeader(0x0001, 0, 2),
//	    ipc.MoveHandleDesc(1),
//	    handle,
//	}
//	switch d := ipc.Classify(words[1]).(type) {
//	case ipc.HandleList:
//	    fmt.Println(d.Mode, d.Count)
//	case ipc.StaticBuffer:
//	    fmt.Println(d.ID, d.Size)
//	}
package ipc
