package scenario

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/hle"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/shared/id"
	"go.uber.org/zap"
)

// Options controls how a scenario is run
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics

	StrictHeader     bool
	TraceDescriptors bool

	// Reply runs the outgoing pass when the scenario declares a reply.
	Reply bool
}

// DefaultOptions returns options for a full request/reply run
func DefaultOptions() Options {
	return Options{
		Logger:       zap.NewNop(),
		StrictHeader: true,
		Reply:        true,
	}
}

// Run builds the scenario's kernel state and drives its request through a
// fresh request context. Translation failures are reported in the Report;
// the returned error covers only scenarios that cannot be set up.
func Run(s *Scenario, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := id.NewRunID()
	logger = logger.With(zap.String("run_id", runID.String()), zap.String("scenario", s.Name))

	w, err := build(s)
	if err != nil {
		return nil, err
	}
	defer w.close()

	request, err := w.encode(&s.Request)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	ctx := hle.NewRequestContext(w.arena,
		hle.WithLogger(logger),
		hle.WithMetrics(opts.Metrics),
		hle.WithStrictHeader(opts.StrictHeader),
		hle.WithDescriptorTrace(opts.TraceDescriptors))
	defer func() {
		if err := ctx.Close(); err != nil {
			logger.Warn("closing request context", zap.Error(err))
		}
	}()

	report := &Report{
		RunID:     runID.String(),
		RequestID: ctx.RequestID().String(),
		Scenario:  s.Name,
		Processes: make(map[string]uint32, len(w.processes)),
	}
	for name, p := range w.processes {
		report.Processes[name] = p.ProcessID()
	}

	client := w.processes[s.Client]
	inErr := ctx.PopulateFromIncoming(request, client, client.Handles)
	report.Incoming = w.inspect(ctx.CommandBuffer(), ctx.GetIncomingHandle,
		func(d ipc.StaticBuffer, _ uint32) []byte { return ctx.GetStaticBuffer(d.ID) })
	report.Incoming.setError(inErr)

	if inErr == nil && opts.Reply && s.Reply != nil {
		if err := w.stageReply(ctx, s.Reply); err != nil {
			return nil, fmt.Errorf("reply: %w", err)
		}
		output, err := w.receiveRegion(s.Request.Receive)
		if err != nil {
			return nil, fmt.Errorf("receive: %w", err)
		}
		outErr := ctx.WriteToOutgoing(output, client, client.Handles)
		report.Outgoing = w.inspect(output,
			func(v uint32) kernel.ObjectID { return client.Handles.Get(kernel.Handle(v)) },
			func(d ipc.StaticBuffer, addr uint32) []byte {
				data, err := client.ReadMemory(kernel.VAddr(addr), len(ctx.GetStaticBuffer(d.ID)))
				if err != nil {
					return nil
				}
				return data
			})
		report.Outgoing.setError(outErr)
	}

	logger.Info("scenario complete",
		zap.String("request_id", report.RequestID),
		zap.Bool("failed", report.Failed()))
	return report, nil
}

// world is the kernel state a scenario declares.
type world struct {
	arena     *kernel.Arena
	processes map[string]*kernel.Process
	objects   map[string]kernel.ObjectID
	names     map[kernel.ObjectID]string
	handles   map[string]kernel.Handle
	owners    map[string]*kernel.Process
}

func build(s *Scenario) (*world, error) {
	w := &world{
		arena:     kernel.NewArena(),
		processes: make(map[string]*kernel.Process),
		objects:   make(map[string]kernel.ObjectID),
		names:     make(map[kernel.ObjectID]string),
		handles:   make(map[string]kernel.Handle),
		owners:    make(map[string]*kernel.Process),
	}

	for _, p := range s.Processes {
		proc := kernel.NewProcess(p.Name, w.arena)
		for _, m := range p.Mappings {
			addr, err := parseLiteral(m.Address)
			if err != nil {
				return nil, fmt.Errorf("process %q: %w", p.Name, err)
			}
			perm, err := parsePerm(m.Perm)
			if err != nil {
				return nil, fmt.Errorf("process %q: %w", p.Name, err)
			}
			backing := bytes.Repeat([]byte{m.Fill}, m.Size)
			if err := proc.Memory.MapBlock(kernel.VAddr(addr), backing, 0, m.Size, perm, kernel.MemoryPrivate); err != nil {
				return nil, fmt.Errorf("process %q: %w", p.Name, err)
			}
		}
		w.processes[p.Name] = proc
	}

	for _, o := range s.Objects {
		reset, err := parseReset(o.Reset)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		obj := w.arena.Insert(kernel.NewEvent(o.Name, reset))
		w.objects[o.Name] = obj
		w.names[obj] = o.Name
	}

	for _, h := range s.Handles {
		proc := w.processes[h.Process]
		handle, err := proc.Handles.Create(w.objects[h.Object])
		if err != nil {
			return nil, fmt.Errorf("handle %q: %w", h.Name, err)
		}
		w.handles[h.Name] = handle
		w.owners[h.Name] = proc
	}
	return w, nil
}

func (w *world) close() {
	for _, p := range w.processes {
		p.Exit()
	}
	for _, obj := range w.objects {
		_ = w.arena.Release(obj)
	}
}

// word resolves a literal or a $handle / $pid reference.
func (w *world) word(ref string) (uint32, error) {
	kind, name, ok := reference(ref)
	if !ok {
		return parseLiteral(ref)
	}
	switch kind {
	case "handle":
		h, ok := w.handles[name]
		if !ok {
			return 0, fmt.Errorf("unknown handle %q", name)
		}
		return uint32(h), nil
	case "pid":
		p, ok := w.processes[name]
		if !ok {
			return 0, fmt.Errorf("unknown process %q", name)
		}
		return p.ProcessID(), nil
	default:
		return 0, fmt.Errorf("reference %q not allowed here", ref)
	}
}

// encode builds the request command buffer.
func (w *world) encode(m *Message) ([]uint32, error) {
	return w.encodeBody(m, func(_ Descriptor, ref string) (uint32, error) {
		return w.word(ref)
	}, func(d Descriptor) int { return d.Size })
}

// stageReply writes the reply into the context's command buffer, staging its
// handles and static buffers.
func (w *world) stageReply(ctx *hle.RequestContext, m *Message) error {
	handle := func(_ Descriptor, ref string) (uint32, error) {
		obj, err := w.replyObject(ctx, ref)
		if err != nil {
			return 0, err
		}
		return ctx.AddOutgoingHandle(obj), nil
	}
	size := func(d Descriptor) int {
		if d.Size > 0 {
			ctx.AddStaticBuffer(d.ID, bytes.Repeat([]byte{d.Fill}, d.Size))
		}
		return len(ctx.GetStaticBuffer(d.ID))
	}

	words, err := w.encodeBody(m, handle, size)
	if err != nil {
		return err
	}
	copy(ctx.CommandBuffer(), words)
	return nil
}

func (w *world) encodeBody(m *Message, handle func(Descriptor, string) (uint32, error), size func(Descriptor) int) ([]uint32, error) {
	words := []uint32{0}
	for _, ref := range m.Normal {
		v, err := w.word(ref)
		if err != nil {
			return nil, err
		}
		words = append(words, v)
	}

	for i, d := range m.Descriptors {
		var payload []string
		switch d.Kind {
		case KindMoveHandles, KindCopyHandles:
			mode := ipc.Copy
			if d.Kind == KindMoveHandles {
				mode = ipc.Move
			}
			words = append(words, ipc.HandleDesc(mode, len(d.Handles)))
			for _, ref := range d.Handles {
				v, err := handle(d, ref)
				if err != nil {
					return nil, fmt.Errorf("descriptor %d: %w", i, err)
				}
				words = append(words, v)
			}
		case KindCallingPid:
			words = append(words, ipc.CallingPidDesc())
			payload = []string{d.Value}
		case KindStaticBuffer:
			words = append(words, ipc.StaticBufferDesc(size(d), d.ID))
			payload = []string{d.Address}
		case KindRaw:
			payload = []string{d.Value}
		}
		for _, ref := range payload {
			v, err := w.word(ref)
			if err != nil {
				return nil, fmt.Errorf("descriptor %d: %w", i, err)
			}
			words = append(words, v)
		}
	}

	translate := len(words) - 1 - len(m.Normal)
	if m.Translate != nil {
		translate = *m.Translate
	}
	if translate < 0 || translate > ipc.MaxTranslateCount {
		return nil, invalid("translate count %d out of range", translate)
	}
	if len(words) > ipc.CommandBufferLength {
		return nil, invalid("%d words do not fit in a command buffer", len(words))
	}
	words[0] = ipc.MakeHeader(int(m.Command), len(m.Normal), translate)
	return words, nil
}

// replyObject resolves a reply handle entry to the object it stages.
func (w *world) replyObject(ctx *hle.RequestContext, ref string) (kernel.ObjectID, error) {
	switch ref {
	case "", "0", "null":
		return kernel.ObjectNull, nil
	}
	kind, name, ok := reference(ref)
	if !ok {
		return kernel.ObjectNull, fmt.Errorf("reply handle %q must be a reference", ref)
	}
	switch kind {
	case "object":
		obj, ok := w.objects[name]
		if !ok {
			return kernel.ObjectNull, fmt.Errorf("unknown object %q", name)
		}
		return obj, nil
	case "incoming":
		h, ok := w.handles[name]
		if !ok {
			return kernel.ObjectNull, fmt.Errorf("unknown handle %q", name)
		}
		return ctx.GetIncomingHandle(uint32(h)), nil
	case "handle":
		h, ok := w.handles[name]
		if !ok {
			return kernel.ObjectNull, fmt.Errorf("unknown handle %q", name)
		}
		return w.owners[name].Handles.Get(h), nil
	default:
		return kernel.ObjectNull, fmt.Errorf("reference %q not allowed in a reply handle list", ref)
	}
}

// receiveRegion is the output buffer for the reply: a command buffer followed
// by the client's registered static buffer targets.
func (w *world) receiveRegion(receive []Receive) ([]uint32, error) {
	n := ipc.CommandBufferLength
	for _, r := range receive {
		if end := ipc.CommandBufferLength + 2*int(r.ID) + 2; end > n {
			n = end
		}
	}
	output := make([]uint32, n)
	for _, r := range receive {
		slot := ipc.CommandBufferLength + 2*int(r.ID)
		addr, err := w.word(r.Address)
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", r.ID, err)
		}
		output[slot] = ipc.StaticBufferDesc(r.Size, r.ID)
		output[slot+1] = addr
	}
	return output, nil
}

func reference(ref string) (kind, name string, ok bool) {
	if !strings.HasPrefix(ref, "$") {
		return "", "", false
	}
	return strings.Cut(ref[1:], ":")
}

func parseLiteral(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid word %q: %w", s, err)
	}
	return uint32(v), nil
}
