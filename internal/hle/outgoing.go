package hle

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
)

// WriteToOutgoing translates the resident command buffer into output for the
// receiving process.
//
// Handle slots must hold placeholders returned by AddOutgoingHandle; each
// staged object gets a fresh handle in dstTable. Static buffer payloads are
// written into dst's memory at the address the receiver registered for the
// same buffer id, found past the command buffer in output at
// CommandBufferLength+2*id. Calling pid words are copied as they are.
//
// On error the pass stops where it is; nothing already done is undone.
func (c *RequestContext) WriteToOutgoing(output []uint32, dst Process, dstTable HandleTable) (err error) {
	const dir = monitoring.DirectionOutgoing

	if c.closed {
		return c.fail(dir, 0, ErrContextClosed)
	}

	h := ipc.ParseHeader(c.cmdBuf[0])
	timer := monitoring.NewTimer(c.metrics, dir)
	defer func() { c.finishPass(dir, timer, h, err) }()

	if err := c.checkHeader(h, len(output)); err != nil {
		return c.fail(dir, 0, err)
	}

	normalEnd := 1 + int(h.Normal)
	copy(output[:normalEnd], c.cmdBuf[:normalEnd])

	end := h.Words()
	for i := normalEnd; i < end; {
		desc := ipc.Classify(c.cmdBuf[i])
		if err := checkPayload(desc, i, end); err != nil {
			return c.fail(dir, i, err)
		}
		c.traceDescriptor(dir, i, desc)
		output[i] = c.cmdBuf[i]

		payload := i + 1
		switch d := desc.(type) {
		case ipc.HandleList:
			for j := 0; j < d.Count; j++ {
				value, err := c.sendHandle(c.cmdBuf[payload+j], d.Mode, dstTable)
				if err != nil {
					return c.fail(dir, payload+j, err)
				}
				output[payload+j] = value
			}

		case ipc.CallingPid:
			output[payload] = c.cmdBuf[payload]

		case ipc.StaticBuffer:
			addr, err := c.sendStaticBuffer(d, output, dst)
			if err != nil {
				return c.fail(dir, payload, err)
			}
			output[payload] = addr

		case ipc.RawData:
		}

		i = payload + desc.Payload()
	}
	return nil
}

// sendHandle installs the object staged under token into dstTable and
// returns the handle value the receiver sees.
func (c *RequestContext) sendHandle(token uint32, mode ipc.HandleMode, dstTable HandleTable) (uint32, error) {
	if token == 0 {
		return 0, nil
	}
	if int(token) > len(c.outgoing) {
		return 0, fmt.Errorf("%w: placeholder %d not staged", ErrUnknownHandle, token)
	}

	obj := c.outgoing[token-1]
	handle, err := dstTable.Create(obj)
	if err != nil {
		return 0, fmt.Errorf("install object %d: %w", obj, err)
	}
	c.metrics.RecordHandle(monitoring.DirectionOutgoing, mode.String())
	return uint32(handle), nil
}

// sendStaticBuffer copies the payload staged for d.ID to the receiver's
// registered buffer and returns its address.
func (c *RequestContext) sendStaticBuffer(d ipc.StaticBuffer, output []uint32, dst Process) (uint32, error) {
	slot := ipc.CommandBufferLength + 2*int(d.ID)
	if slot+1 >= len(output) {
		return 0, malformed("no receive buffer registered for static buffer %d", d.ID)
	}

	target, ok := ipc.Classify(output[slot]).(ipc.StaticBuffer)
	if !ok {
		return 0, malformed("receive slot for static buffer %d holds %#08x", d.ID, output[slot])
	}

	data := c.staticBuffers[d.ID]
	if len(data) > int(target.Size) {
		return 0, malformed("static buffer %d: %d bytes staged, receiver accepts %d", d.ID, len(data), target.Size)
	}

	addr := output[slot+1]
	if err := dst.WriteMemory(kernel.VAddr(addr), data); err != nil {
		return 0, fmt.Errorf("%w: static buffer %d: %v", ErrUnmappedMemory, d.ID, err)
	}
	c.metrics.RecordStaticBuffer(monitoring.DirectionOutgoing, len(data))
	return addr, nil
}
