package hle

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
	"go.uber.org/zap"
)

// PopulateFromIncoming copies a client's command buffer into the context,
// translating its descriptors against the client's process and handle table.
//
// Handle words are written through unchanged and their objects recorded for
// GetIncomingHandle; moved handles are closed in srcTable. The calling pid
// payload is replaced with src's process id. Static buffers are read from
// src's memory and recorded for GetStaticBuffer.
//
// The context's previous incoming state is discarded first. On error the pass
// stops where it is; nothing already done is undone.
func (c *RequestContext) PopulateFromIncoming(input []uint32, src Process, srcTable HandleTable) (err error) {
	const dir = monitoring.DirectionIncoming

	if c.closed {
		return c.fail(dir, 0, ErrContextClosed)
	}
	if len(input) == 0 {
		return c.fail(dir, 0, malformed("empty command buffer"))
	}

	h := ipc.ParseHeader(input[0])
	timer := monitoring.NewTimer(c.metrics, dir)
	defer func() { c.finishPass(dir, timer, h, err) }()

	if relErr := c.releaseIncoming(); relErr != nil {
		c.logger.Warn("releasing previous incoming objects failed",
			zap.String("request_id", c.requestID.String()),
			zap.Error(relErr))
	}
	c.staticBuffers = make(map[uint8][]byte)
	c.cmdBuf = [ipc.CommandBufferLength]uint32{}

	if err := c.checkHeader(h, len(input)); err != nil {
		return c.fail(dir, 0, err)
	}

	normalEnd := 1 + int(h.Normal)
	copy(c.cmdBuf[:normalEnd], input[:normalEnd])

	end := h.Words()
	for i := normalEnd; i < end; {
		desc := ipc.Classify(input[i])
		if err := checkPayload(desc, i, end); err != nil {
			return c.fail(dir, i, err)
		}
		c.traceDescriptor(dir, i, desc)
		c.cmdBuf[i] = input[i]

		payload := i + 1
		switch d := desc.(type) {
		case ipc.HandleList:
			for j := 0; j < d.Count; j++ {
				if err := c.receiveHandle(input[payload+j], d.Mode, srcTable); err != nil {
					return c.fail(dir, payload+j, err)
				}
				c.cmdBuf[payload+j] = input[payload+j]
			}

		case ipc.CallingPid:
			c.cmdBuf[payload] = src.ProcessID()

		case ipc.StaticBuffer:
			addr := input[payload]
			data, err := src.ReadMemory(kernel.VAddr(addr), int(d.Size))
			if err != nil {
				return c.fail(dir, payload, fmt.Errorf("%w: static buffer %d: %v", ErrUnmappedMemory, d.ID, err))
			}
			c.staticBuffers[d.ID] = data
			c.cmdBuf[payload] = addr
			c.metrics.RecordStaticBuffer(dir, len(data))

		case ipc.RawData:
			// Structural only; the word is already copied.
		}

		i = payload + desc.Payload()
	}
	return nil
}

// receiveHandle resolves one handle word from the sender's table and records
// it. Zero is the null object and is never looked up.
func (c *RequestContext) receiveHandle(value uint32, mode ipc.HandleMode, srcTable HandleTable) error {
	if value == 0 {
		return nil
	}

	handle := kernel.Handle(value)
	obj := srcTable.Get(handle)
	if obj.IsNull() {
		return fmt.Errorf("%w: %#08x not in source table", ErrUnknownHandle, value)
	}
	if err := c.objects.Retain(obj); err != nil {
		return fmt.Errorf("%w: %#08x: %v", ErrUnknownHandle, value, err)
	}
	c.incoming[value] = obj
	c.incomingRefs = append(c.incomingRefs, obj)

	if mode == ipc.Move {
		if err := srcTable.Close(handle); err != nil {
			return fmt.Errorf("%w: closing moved %#08x: %v", ErrUnknownHandle, value, err)
		}
	}
	c.metrics.RecordHandle(monitoring.DirectionIncoming, mode.String())
	return nil
}
