// Package kernel provides the kernel-side collaborators IPC translation works
// against: an object arena, per-process handle tables, process address spaces
// and process identity.
//
// Objects:
//   - Live in an Arena and are referred to by ObjectID (index + 1, 0 = null)
//   - Carry a shared-owner count; an object is freed when it drops to zero
//   - Never aliased as raw pointers across handle tables
//
// Handle Tables:
//   - Map small integer handles to ObjectIDs for one process
//   - Each mapping holds one owner reference on the object
//   - Handle 0 is never allocated
//
// Address Spaces:
//   - Sorted, non-overlapping mapped blocks backed by byte slices
//   - Per-block read/write permissions
//   - Reads and writes may span adjacent blocks
//
// Example Usage:
//
//	arena := kernel.NewArena()
//	proc := kernel.NewProcess("client", arena)
//	event := arena.Insert(kernel.NewEvent("ready", kernel.OneShot))
//	h, err := proc.Handles.Create(event)
//	arena.Release(event)
package kernel
