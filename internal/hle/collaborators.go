package hle

import "github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"

// ObjectStore holds the shared-owner counts of kernel objects.
// *kernel.Arena implements it.
type ObjectStore interface {
	Retain(id kernel.ObjectID) error
	Release(id kernel.ObjectID) error
}

// HandleTable is one process's handle table. *kernel.HandleTable implements it.
type HandleTable interface {
	// Create opens a fresh handle to obj.
	Create(obj kernel.ObjectID) (kernel.Handle, error)
	// Get resolves h, returning kernel.ObjectNull if it is not open.
	Get(h kernel.Handle) kernel.ObjectID
	// Close removes h.
	Close(h kernel.Handle) error
}

// Process is the identity and memory of one side of a request.
// *kernel.Process implements it.
type Process interface {
	ProcessID() uint32
	ReadMemory(addr kernel.VAddr, length int) ([]byte, error)
	WriteMemory(addr kernel.VAddr, data []byte) error
}

var (
	_ ObjectStore = (*kernel.Arena)(nil)
	_ HandleTable = (*kernel.HandleTable)(nil)
	_ Process     = (*kernel.Process)(nil)
)
