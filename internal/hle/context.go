package hle

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/shared/id"
	"go.uber.org/zap"
)

// Option configures a RequestContext.
type Option func(*RequestContext)

// WithLogger sets the logger passes report to.
func WithLogger(logger *zap.Logger) Option {
	return func(c *RequestContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics passes are recorded in.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *RequestContext) { c.metrics = metrics }
}

// WithRequestID overrides the generated request id.
func WithRequestID(rid id.RequestID) Option {
	return func(c *RequestContext) { c.requestID = rid }
}

// WithStrictHeader controls whether non-zero reserved header bits are
// rejected. Enabled by default.
func WithStrictHeader(strict bool) Option {
	return func(c *RequestContext) { c.strictHeader = strict }
}

// WithDescriptorTrace logs every descriptor at debug level.
func WithDescriptorTrace(trace bool) Option {
	return func(c *RequestContext) { c.traceDescriptors = trace }
}

// RequestContext carries one IPC request through its incoming and outgoing
// translation passes.
type RequestContext struct {
	objects   ObjectStore
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	requestID id.RequestID

	strictHeader     bool
	traceDescriptors bool

	cmdBuf [ipc.CommandBufferLength]uint32

	// incoming maps a handle value written into cmdBuf to the object it
	// resolved to in the sender's table.
	incoming     map[uint32]kernel.ObjectID
	incomingRefs []kernel.ObjectID

	// outgoing[token-1] is the object staged under a placeholder token.
	outgoing []kernel.ObjectID

	staticBuffers map[uint8][]byte

	closed bool
}

// NewRequestContext creates a context for one request. Every object the
// context records or stages holds a reference in objects until Close.
func NewRequestContext(objects ObjectStore, opts ...Option) *RequestContext {
	c := &RequestContext{
		objects:       objects,
		logger:        zap.NewNop(),
		requestID:     id.NewRequestID(),
		strictHeader:  true,
		incoming:      make(map[uint32]kernel.ObjectID),
		staticBuffers: make(map[uint8][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.IncContextsActive()
	return c
}

// RequestID returns the id used to correlate this request in logs.
func (c *RequestContext) RequestID() id.RequestID {
	return c.requestID
}

// CommandBuffer returns the resident command buffer. The service reads the
// request from it and writes its reply into it.
func (c *RequestContext) CommandBuffer() []uint32 {
	return c.cmdBuf[:]
}

// GetIncomingHandle returns the object recorded for a handle value written by
// the incoming pass. Zero and unrecorded values return kernel.ObjectNull.
func (c *RequestContext) GetIncomingHandle(value uint32) kernel.ObjectID {
	return c.incoming[value]
}

// AddOutgoingHandle stages obj for the outgoing pass and returns the
// placeholder the service must write into the reply's handle slot. The null
// object is always placeholder 0.
func (c *RequestContext) AddOutgoingHandle(obj kernel.ObjectID) uint32 {
	if obj.IsNull() || c.closed {
		return 0
	}
	if err := c.objects.Retain(obj); err != nil {
		// A dead object cannot be installed anywhere; stage it as null.
		c.logger.Warn("staging dead object as null",
			zap.String("request_id", c.requestID.String()),
			zap.Uint32("object", uint32(obj)),
			zap.Error(err))
		return 0
	}
	c.outgoing = append(c.outgoing, obj)
	return uint32(len(c.outgoing))
}

// AddStaticBuffer stages data under buffer id, replacing any previous payload.
func (c *RequestContext) AddStaticBuffer(bufferID uint8, data []byte) {
	c.staticBuffers[bufferID] = data
}

// GetStaticBuffer returns the payload staged under buffer id, or nil.
func (c *RequestContext) GetStaticBuffer(bufferID uint8) []byte {
	return c.staticBuffers[bufferID]
}

// Close releases every object reference held by the context. It is safe to
// call more than once.
func (c *RequestContext) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.metrics.DecContextsActive()

	var errs []error
	errs = append(errs, c.releaseIncoming())
	for _, obj := range c.outgoing {
		if err := c.objects.Release(obj); err != nil {
			errs = append(errs, err)
		}
	}
	c.outgoing = nil
	return errors.Join(errs...)
}

func (c *RequestContext) releaseIncoming() error {
	var errs []error
	for _, obj := range c.incomingRefs {
		if err := c.objects.Release(obj); err != nil {
			errs = append(errs, err)
		}
	}
	c.incomingRefs = nil
	c.incoming = make(map[uint32]kernel.ObjectID)
	return errors.Join(errs...)
}

// checkHeader validates a header against the resident buffer and the number
// of words actually available.
func (c *RequestContext) checkHeader(h ipc.Header, available int) error {
	if c.strictHeader && h.Reserved != 0 {
		return malformed("reserved header bits %#x set", h.Reserved)
	}
	if h.Words() > ipc.CommandBufferLength {
		return malformed("header declares %d words, buffer holds %d", h.Words(), ipc.CommandBufferLength)
	}
	if h.Words() > available {
		return malformed("header declares %d words, %d present", h.Words(), available)
	}
	return nil
}

// checkPayload ensures desc's payload fits within the translate section.
func checkPayload(desc ipc.Descriptor, at, end int) error {
	if at+1+desc.Payload() > end {
		return malformed("%v at word %d overruns translate section ending at word %d", desc, at, end)
	}
	return nil
}

func (c *RequestContext) fail(direction string, word int, err error) error {
	return &TranslateError{Direction: direction, Word: word, Err: err}
}

func (c *RequestContext) finishPass(direction string, timer *monitoring.Timer, h ipc.Header, err error) {
	duration := timer.Stop(err)
	fields := []zap.Field{
		zap.String("request_id", c.requestID.String()),
		zap.String("direction", direction),
		zap.String("command", fmt.Sprintf("%#04x", h.Command)),
		zap.Uint32("normal", h.Normal),
		zap.Uint32("translate", h.Translate),
		zap.Duration("duration", duration),
	}
	if err != nil {
		c.logger.Warn("ipc pass failed", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Debug("ipc pass complete", fields...)
}

func (c *RequestContext) traceDescriptor(direction string, word int, desc ipc.Descriptor) {
	c.metrics.RecordDescriptor(direction, desc.Kind())
	if !c.traceDescriptors {
		return
	}
	c.logger.Debug("ipc descriptor",
		zap.String("request_id", c.requestID.String()),
		zap.String("direction", direction),
		zap.Int("word", word),
		zap.Stringer("descriptor", desc))
}
