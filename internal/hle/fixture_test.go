package hle

import (
	"testing"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	arena  *kernel.Arena
	client *kernel.Process
	server *kernel.Process
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	arena := kernel.NewArena()
	return &fixture{
		arena:  arena,
		client: kernel.NewProcess("client", arena),
		server: kernel.NewProcess("server", arena),
	}
}

// event inserts a named event and returns it with the caller's reference
// already dropped into a handle in p's table.
func (f *fixture) event(t *testing.T, p *kernel.Process, name string) (kernel.ObjectID, kernel.Handle) {
	t.Helper()
	obj := f.arena.Insert(kernel.NewEvent(name, kernel.OneShot))
	h, err := p.Handles.Create(obj)
	require.NoError(t, err)
	require.NoError(t, f.arena.Release(obj))
	return obj, h
}

func (f *fixture) context(t *testing.T, opts ...Option) *RequestContext {
	t.Helper()
	ctx := NewRequestContext(f.arena, opts...)
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func mapPage(t *testing.T, p *kernel.Process, addr kernel.VAddr, fill byte, perm kernel.Permission) []byte {
	t.Helper()
	backing := make([]byte, ipc.PageSize)
	for i := range backing {
		backing[i] = fill
	}
	require.NoError(t, p.Memory.MapBlock(addr, backing, 0, len(backing), perm, kernel.MemoryPrivate))
	return backing
}

func buffer(words ...uint32) []uint32 {
	out := make([]uint32, ipc.CommandBufferLength)
	copy(out, words)
	return out
}

type mockHandleTable struct {
	mock.Mock
}

func (m *mockHandleTable) Create(obj kernel.ObjectID) (kernel.Handle, error) {
	args := m.Called(obj)
	return args.Get(0).(kernel.Handle), args.Error(1)
}

func (m *mockHandleTable) Get(h kernel.Handle) kernel.ObjectID {
	args := m.Called(h)
	return args.Get(0).(kernel.ObjectID)
}

func (m *mockHandleTable) Close(h kernel.Handle) error {
	args := m.Called(h)
	return args.Error(0)
}
