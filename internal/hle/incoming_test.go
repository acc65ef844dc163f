package hle

import (
	"testing"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const targetAddress kernel.VAddr = 0x10000000

func TestIncomingEmptyBuffer(t *testing.T) {
	f := newFixture(t)
	ctx := f.context(t)

	require.NoError(t, ctx.PopulateFromIncoming([]uint32{ipc.MakeHeader(0x1234, 0, 0)}, f.client, f.client.Handles))
	assert.Equal(t, uint32(0x12340000), ctx.CommandBuffer()[0])
}

func TestIncomingRegularParams(t *testing.T) {
	f := newFixture(t)
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 3, 0), 0x12345678, 0x21122112, 0xAABBCCDD}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	out := ctx.CommandBuffer()
	assert.Equal(t, uint32(0x12345678), out[1])
	assert.Equal(t, uint32(0x21122112), out[2])
	assert.Equal(t, uint32(0xAABBCCDD), out[3])
}

func TestIncomingRawWordsRoundTrip(t *testing.T) {
	for normal := 0; normal < ipc.CommandBufferLength; normal++ {
		f := newFixture(t)
		ctx := f.context(t)

		input := buffer(ipc.MakeHeader(0x42, normal, 0))
		for i := 1; i <= normal; i++ {
			input[i] = uint32(i) * 0x01010101
		}
		require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles), "normal=%d", normal)

		out := buffer()
		require.NoError(t, ctx.WriteToOutgoing(out, f.server, f.server.Handles), "normal=%d", normal)
		assert.Equal(t, input[:1+normal], out[:1+normal], "normal=%d", normal)
	}
}

func TestIncomingMoveHandle(t *testing.T) {
	f := newFixture(t)
	a, ha := f.event(t, f.client, "a")
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 0, 2), ipc.MoveHandleDesc(1), uint32(ha)}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	out := ctx.CommandBuffer()
	assert.Equal(t, uint32(ha), out[2])
	assert.Equal(t, a, ctx.GetIncomingHandle(out[2]))
	assert.Equal(t, kernel.ObjectNull, f.client.Handles.Get(ha))
	assert.Equal(t, 0, f.client.Handles.Len())
}

func TestIncomingCopyHandle(t *testing.T) {
	f := newFixture(t)
	a, ha := f.event(t, f.client, "a")
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 0, 2), ipc.CopyHandleDesc(1), uint32(ha)}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	out := ctx.CommandBuffer()
	assert.Equal(t, a, ctx.GetIncomingHandle(out[2]))
	assert.Equal(t, a, f.client.Handles.Get(ha))
}

func TestIncomingMultiHandleDescriptors(t *testing.T) {
	f := newFixture(t)
	a, ha := f.event(t, f.client, "a")
	b, hb := f.event(t, f.client, "b")
	c, hc := f.event(t, f.client, "c")
	ctx := f.context(t)

	input := []uint32{
		ipc.MakeHeader(0, 0, 5),
		ipc.MoveHandleDesc(2), uint32(ha), uint32(hb),
		ipc.MoveHandleDesc(1), uint32(hc),
	}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	out := ctx.CommandBuffer()
	assert.Equal(t, a, ctx.GetIncomingHandle(out[2]))
	assert.Equal(t, b, ctx.GetIncomingHandle(out[3]))
	assert.Equal(t, c, ctx.GetIncomingHandle(out[5]))
}

func TestIncomingNullHandle(t *testing.T) {
	f := newFixture(t)
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 0, 2), ipc.MoveHandleDesc(1), 0}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	out := ctx.CommandBuffer()
	assert.Equal(t, uint32(0), out[2])
	assert.Equal(t, kernel.ObjectNull, ctx.GetIncomingHandle(out[2]))
}

func TestIncomingNullHandleSkipsLookup(t *testing.T) {
	f := newFixture(t)
	a, _ := f.event(t, f.server, "a")
	ctx := f.context(t)

	table := new(mockHandleTable)
	table.On("Get", kernel.Handle(7)).Return(a).Once()
	table.On("Close", kernel.Handle(7)).Return(nil).Once()

	input := []uint32{
		ipc.MakeHeader(0, 0, 5),
		ipc.CopyHandleDesc(2), 0, 0,
		ipc.MoveHandleDesc(1), 7,
	}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, table))

	table.AssertExpectations(t)
	table.AssertNotCalled(t, "Get", kernel.Handle(0))
	table.AssertNumberOfCalls(t, "Get", 1)
	assert.Equal(t, a, ctx.GetIncomingHandle(7))
	assert.Equal(t, kernel.ObjectNull, ctx.GetIncomingHandle(0))
}

func TestIncomingCallingPid(t *testing.T) {
	f := newFixture(t)
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 0, 2), ipc.CallingPidDesc(), 0x98989898}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	out := ctx.CommandBuffer()
	assert.Equal(t, ipc.CallingPidDesc(), out[1])
	assert.Equal(t, f.client.ProcessID(), out[2])
}

func TestIncomingStaticBuffer(t *testing.T) {
	f := newFixture(t)
	backing := mapPage(t, f.client, targetAddress, 0xAB, kernel.PermRead)
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 0, 2), ipc.StaticBufferDesc(len(backing), 0), uint32(targetAddress)}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	assert.Equal(t, backing, ctx.GetStaticBuffer(0))
	assert.Equal(t, uint32(targetAddress), ctx.CommandBuffer()[2])

	// The recorded payload is a copy.
	backing[0] = 0
	assert.Equal(t, byte(0xAB), ctx.GetStaticBuffer(0)[0])

	require.NoError(t, f.client.Memory.UnmapRange(targetAddress, uint32(len(backing))))
}

func TestIncomingMixedParams(t *testing.T) {
	f := newFixture(t)
	backing := mapPage(t, f.client, targetAddress, 0xCE, kernel.PermReadWrite)
	a, ha := f.event(t, f.client, "a")
	ctx := f.context(t)

	input := []uint32{
		ipc.MakeHeader(0, 2, 6),
		0x12345678,
		0xABCDEF00,
		ipc.MoveHandleDesc(1),
		uint32(ha),
		ipc.CallingPidDesc(),
		0,
		ipc.StaticBufferDesc(len(backing), 0),
		uint32(targetAddress),
	}
	require.NoError(t, ctx.PopulateFromIncoming(input, f.client, f.client.Handles))

	out := ctx.CommandBuffer()
	assert.Equal(t, uint32(0x12345678), out[1])
	assert.Equal(t, uint32(0xABCDEF00), out[2])
	assert.Equal(t, a, ctx.GetIncomingHandle(out[4]))
	assert.Equal(t, f.client.ProcessID(), out[6])
	assert.Equal(t, backing, ctx.GetStaticBuffer(0))
}

func TestIncomingReplacesPreviousState(t *testing.T) {
	f := newFixture(t)
	a, ha := f.event(t, f.client, "a")
	ctx := f.context(t)

	require.NoError(t, ctx.PopulateFromIncoming(
		[]uint32{ipc.MakeHeader(0, 0, 2), ipc.CopyHandleDesc(1), uint32(ha)},
		f.client, f.client.Handles))
	ctx.AddStaticBuffer(1, []byte{1})
	require.Equal(t, uint32(2), f.arena.Refs(a))

	require.NoError(t, ctx.PopulateFromIncoming([]uint32{ipc.MakeHeader(0, 0, 0)}, f.client, f.client.Handles))

	assert.Equal(t, kernel.ObjectNull, ctx.GetIncomingHandle(uint32(ha)))
	assert.Nil(t, ctx.GetStaticBuffer(1))
	assert.Equal(t, uint32(1), f.arena.Refs(a))
	assert.Equal(t, uint32(0), ctx.CommandBuffer()[2])
}

func TestIncomingMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input []uint32
		word  int
	}{
		{"empty input", nil, 0},
		{"header exceeds input", []uint32{ipc.MakeHeader(0, 3, 0), 1}, 0},
		{"header exceeds buffer", buffer(ipc.MakeHeader(0, 63, 63)), 0},
		{"reserved bits", []uint32{ipc.MakeHeader(0, 0, 0) | 0x1000}, 0},
		{"handles overrun", []uint32{ipc.MakeHeader(0, 0, 2), ipc.MoveHandleDesc(2), 0, 0}, 1},
		{"calling pid overrun", []uint32{ipc.MakeHeader(0, 0, 1), ipc.CallingPidDesc(), 0}, 1},
		{"static buffer overrun", []uint32{ipc.MakeHeader(0, 1, 1), 5, ipc.StaticBufferDesc(4, 0)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := f.context(t)

			err := ctx.PopulateFromIncoming(tt.input, f.client, f.client.Handles)
			require.ErrorIs(t, err, ErrMalformedBuffer)

			var terr *TranslateError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, "incoming", terr.Direction)
			assert.Equal(t, tt.word, terr.Word)
		})
	}
}

func TestIncomingLenientReservedBits(t *testing.T) {
	f := newFixture(t)
	ctx := f.context(t, WithStrictHeader(false))

	require.NoError(t, ctx.PopulateFromIncoming([]uint32{ipc.MakeHeader(0x1, 1, 0) | 0x3000, 9}, f.client, f.client.Handles))
	assert.Equal(t, uint32(9), ctx.CommandBuffer()[1])
}

func TestIncomingUnknownHandle(t *testing.T) {
	f := newFixture(t)
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 0, 2), ipc.CopyHandleDesc(1), 0x8001}
	err := ctx.PopulateFromIncoming(input, f.client, f.client.Handles)

	require.ErrorIs(t, err, ErrUnknownHandle)
	var terr *TranslateError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Word)
}

func TestIncomingFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	a, ha := f.event(t, f.client, "a")
	ctx := f.context(t)

	input := []uint32{
		ipc.MakeHeader(0, 0, 4),
		ipc.MoveHandleDesc(1), uint32(ha),
		ipc.StaticBufferDesc(0x10, 0), uint32(targetAddress),
	}
	err := ctx.PopulateFromIncoming(input, f.client, f.client.Handles)
	require.ErrorIs(t, err, ErrUnmappedMemory)

	// The move already happened.
	assert.Equal(t, kernel.ObjectNull, f.client.Handles.Get(ha))
	assert.Equal(t, a, ctx.GetIncomingHandle(uint32(ha)))
	assert.Equal(t, uint32(ha), ctx.CommandBuffer()[2])
}

func TestIncomingStaticBufferNeedsReadPermission(t *testing.T) {
	f := newFixture(t)
	mapPage(t, f.client, targetAddress, 0x11, kernel.PermWrite)
	ctx := f.context(t)

	input := []uint32{ipc.MakeHeader(0, 0, 2), ipc.StaticBufferDesc(0x10, 2), uint32(targetAddress)}
	err := ctx.PopulateFromIncoming(input, f.client, f.client.Handles)

	assert.ErrorIs(t, err, ErrUnmappedMemory)
	assert.ErrorContains(t, err, kernel.ErrPermission.Error())
}

func TestIncomingMoveCloseFailure(t *testing.T) {
	f := newFixture(t)
	a, _ := f.event(t, f.server, "a")
	ctx := f.context(t)

	table := new(mockHandleTable)
	table.On("Get", kernel.Handle(3)).Return(a)
	table.On("Close", kernel.Handle(3)).Return(kernel.ErrInvalidHandle)

	err := ctx.PopulateFromIncoming([]uint32{ipc.MakeHeader(0, 0, 2), ipc.MoveHandleDesc(1), 3}, f.client, table)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	table.AssertCalled(t, "Close", mock.Anything)
}
