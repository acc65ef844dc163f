package kernel

import "sync/atomic"

var nextProcessID atomic.Uint32

// Process is an emulated guest process: an identity, an address space and a
// handle table.
type Process struct {
	ID      uint32
	Name    string
	Memory  *AddressSpace
	Handles *HandleTable
}

// NewProcess creates a process with a fresh id, an empty address space and an
// empty handle table over arena.
func NewProcess(name string, arena *Arena) *Process {
	return &Process{
		ID:      nextProcessID.Add(1),
		Name:    name,
		Memory:  NewAddressSpace(),
		Handles: NewHandleTable(arena),
	}
}

// ProcessID returns the id assigned at creation
func (p *Process) ProcessID() uint32 {
	return p.ID
}

// Exit closes every handle the process still holds
func (p *Process) Exit() {
	p.Handles.Clear()
}

// ReadMemory reads length bytes of the process's memory at addr
func (p *Process) ReadMemory(addr VAddr, length int) ([]byte, error) {
	return p.Memory.Read(addr, length)
}

// WriteMemory writes data into the process's memory at addr
func (p *Process) WriteMemory(addr VAddr, data []byte) error {
	return p.Memory.Write(addr, data)
}
