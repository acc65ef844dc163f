package scenario

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/hle"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
	"github.com/bytedance/sonic"
	"golang.org/x/crypto/blake2b"
)

// Report describes one scenario run.
type Report struct {
	RunID     string            `json:"run_id"`
	RequestID string            `json:"request_id"`
	Scenario  string            `json:"scenario"`
	Processes map[string]uint32 `json:"processes"`

	Incoming *PassReport `json:"incoming"`
	Outgoing *PassReport `json:"outgoing,omitempty"`
}

// PassReport is the command buffer a pass produced and what it translated.
type PassReport struct {
	Words         []string           `json:"words"`
	Descriptors   []DescriptorReport `json:"descriptors,omitempty"`
	Handles       []HandleReport     `json:"handles,omitempty"`
	StaticBuffers []BufferReport     `json:"static_buffers,omitempty"`
	Error         *ErrorReport       `json:"error,omitempty"`
}

type DescriptorReport struct {
	Word int    `json:"word"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// HandleReport is one handle slot. Object is empty for the null object.
type HandleReport struct {
	Slot   int    `json:"slot"`
	Mode   string `json:"mode"`
	Value  string `json:"value"`
	Object string `json:"object,omitempty"`
}

// BufferReport is one static buffer; Digest is the hex BLAKE2b-256 of its bytes.
type BufferReport struct {
	ID      uint8  `json:"id"`
	Address string `json:"address"`
	Size    int    `json:"size"`
	Digest  string `json:"digest"`
}

type ErrorReport struct {
	Kind    string `json:"kind"`
	Word    int    `json:"word"`
	Message string `json:"message"`
}

// Failed reports whether either pass failed.
func (r *Report) Failed() bool {
	return (r.Incoming != nil && r.Incoming.Error != nil) ||
		(r.Outgoing != nil && r.Outgoing.Error != nil)
}

// JSON encodes the report.
func (r *Report) JSON(pretty bool) ([]byte, error) {
	if pretty {
		return sonic.MarshalIndent(r, "", "  ")
	}
	return sonic.Marshal(r)
}

// ParseReport decodes a report produced by JSON.
func ParseReport(data []byte) (*Report, error) {
	var r Report
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// Digest returns the hex BLAKE2b-256 digest used in buffer reports.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Word formats a command buffer word the way reports do.
func Word(v uint32) string {
	return fmt.Sprintf("%#08x", v)
}

func (p *PassReport) setError(err error) {
	if err == nil {
		return
	}
	p.Error = &ErrorReport{Kind: hle.ErrorKind(err), Message: err.Error()}
	var terr *hle.TranslateError
	if errors.As(err, &terr) {
		p.Error.Word = terr.Word
	}
}

// inspect walks the command buffer in words the way the passes do and
// reports each descriptor. object resolves a handle slot's value; buffer
// returns the bytes a static buffer carried.
func (w *world) inspect(words []uint32, object func(uint32) kernel.ObjectID, buffer func(d ipc.StaticBuffer, addr uint32) []byte) *PassReport {
	h := ipc.ParseHeader(words[0])
	end := h.Words()
	if end > len(words) {
		end = len(words)
	}

	p := &PassReport{Words: make([]string, end)}
	for i, v := range words[:end] {
		p.Words[i] = Word(v)
	}

	for i := 1 + int(h.Normal); i < end; {
		desc := ipc.Classify(words[i])
		if i+1+desc.Payload() > end {
			break
		}
		p.Descriptors = append(p.Descriptors, DescriptorReport{Word: i, Kind: desc.Kind(), Text: desc.String()})

		switch d := desc.(type) {
		case ipc.HandleList:
			for slot := i + 1; slot <= i+d.Count; slot++ {
				v := words[slot]
				p.Handles = append(p.Handles, HandleReport{
					Slot:   slot,
					Mode:   d.Mode.String(),
					Value:  Word(v),
					Object: w.names[object(v)],
				})
			}
		case ipc.StaticBuffer:
			addr := words[i+1]
			data := buffer(d, addr)
			p.StaticBuffers = append(p.StaticBuffers, BufferReport{
				ID:      d.ID,
				Address: Word(addr),
				Size:    len(data),
				Digest:  Digest(data),
			})
		}
		i += 1 + desc.Payload()
	}
	return p
}
