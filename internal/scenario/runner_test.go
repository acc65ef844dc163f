package scenario

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func load(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := Load(filepath.Join("testdata", name))
	require.NoError(t, err)
	return s
}

func TestRunMixed(t *testing.T) {
	report, err := Run(load(t, "mixed.yaml"), DefaultOptions())
	require.NoError(t, err)
	require.False(t, report.Failed())

	in := report.Incoming
	require.Len(t, in.Words, 9)
	assert.Equal(t, Word(ipc.MakeHeader(16, 2, 6)), in.Words[0])
	assert.Equal(t, "0x12345678", in.Words[1])
	assert.Equal(t, "0xabcdef00", in.Words[2])
	assert.Equal(t, Word(report.Processes["client"]), in.Words[6])
	assert.Equal(t, "0x10000000", in.Words[8])

	require.Len(t, in.Handles, 1)
	assert.Equal(t, HandleReport{Slot: 4, Mode: "move", Value: in.Words[4], Object: "request-event"}, in.Handles[0])

	require.Len(t, in.StaticBuffers, 1)
	assert.Equal(t, 4096, in.StaticBuffers[0].Size)
	assert.Equal(t, Digest(bytes.Repeat([]byte{0xCE}, 4096)), in.StaticBuffers[0].Digest)

	kinds := make([]string, 0, len(in.Descriptors))
	for _, d := range in.Descriptors {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []string{"handles", "calling_pid", "static_buffer"}, kinds)

	out := report.Outgoing
	require.NotNil(t, out)
	require.Len(t, out.Words, 9)
	require.Len(t, out.Handles, 3)
	assert.Equal(t, "request-event", out.Handles[0].Object)
	assert.Equal(t, "reply-event", out.Handles[1].Object)
	assert.Equal(t, "", out.Handles[2].Object)
	assert.Equal(t, Word(0), out.Handles[2].Value)

	require.Len(t, out.StaticBuffers, 1)
	assert.Equal(t, BufferReport{
		ID:      1,
		Address: "0x20000000",
		Size:    16,
		Digest:  Digest(bytes.Repeat([]byte{0x5A}, 16)),
	}, out.StaticBuffers[0])
}

func TestRunWithoutReply(t *testing.T) {
	opts := DefaultOptions()
	opts.Reply = false

	report, err := Run(load(t, "mixed.yaml"), opts)
	require.NoError(t, err)
	assert.Nil(t, report.Outgoing)
}

func TestRunCopy(t *testing.T) {
	report, err := Run(load(t, "copy.toml"), DefaultOptions())
	require.NoError(t, err)
	require.False(t, report.Failed())

	in := report.Incoming
	assert.Equal(t, Word(report.Processes["server"]), in.Words[2])
	assert.Equal(t, Word(report.Processes["client"]), in.Words[8])

	require.Len(t, in.Handles, 3)
	assert.Equal(t, "a", in.Handles[0].Object)
	assert.Equal(t, "", in.Handles[1].Object)
	assert.Equal(t, "b", in.Handles[2].Object)
	for _, h := range in.Handles {
		assert.Equal(t, "copy", h.Mode)
	}
}

func TestRunMalformed(t *testing.T) {
	report, err := Run(load(t, "malformed.yaml"), DefaultOptions())
	require.NoError(t, err)
	require.True(t, report.Failed())

	require.NotNil(t, report.Incoming.Error)
	assert.Equal(t, "malformed_buffer", report.Incoming.Error.Kind)
	assert.Equal(t, 1, report.Incoming.Error.Word)
	assert.Empty(t, report.Incoming.Handles)
}

func TestRunUnmappedKeepsEarlierMove(t *testing.T) {
	report, err := Run(load(t, "unmapped.yaml"), DefaultOptions())
	require.NoError(t, err)

	in := report.Incoming
	require.NotNil(t, in.Error)
	assert.Equal(t, "unmapped_memory", in.Error.Kind)
	assert.Equal(t, 4, in.Error.Word)

	require.Len(t, in.Handles, 1)
	assert.Equal(t, "a", in.Handles[0].Object)
}

func TestRunRecordsMetricsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := monitoring.NewMetrics(prometheus.NewRegistry(), "test")

	opts := DefaultOptions()
	opts.Logger = zap.New(core)
	opts.Metrics = m

	report, err := Run(load(t, "mixed.yaml"), opts)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Passes.WithLabelValues(monitoring.DirectionIncoming, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Passes.WithLabelValues(monitoring.DirectionOutgoing, "success")))
	assert.Equal(t, 4096.0+16.0, testutil.ToFloat64(m.StaticBufferBytes.WithLabelValues(monitoring.DirectionIncoming))+
		testutil.ToFloat64(m.StaticBufferBytes.WithLabelValues(monitoring.DirectionOutgoing)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ContextsActive))

	entries := logs.FilterMessage("scenario complete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, report.RunID, entries[0].ContextMap()["run_id"])
}

func TestRunUnknownReference(t *testing.T) {
	s, err := Parse([]byte(`
processes: [{name: client}]
request:
  normal: ["$handle:nope"]
`), FormatYAML)
	require.NoError(t, err)

	_, err = Run(s, DefaultOptions())
	assert.ErrorContains(t, err, "unknown handle")
}

func TestRunTooManyWords(t *testing.T) {
	normal := make([]string, 40)
	for i := range normal {
		normal[i] = "1"
	}
	s := &Scenario{
		Processes: []Process{{Name: "client"}},
		Client:    "client",
		Request: Message{
			Normal: normal,
			Descriptors: []Descriptor{
				{Kind: KindCopyHandles, Handles: make([]string, 30)},
			},
		},
	}
	require.NoError(t, s.Validate())

	_, err := Run(s, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidScenario)
}

func TestReportJSONRoundTrip(t *testing.T) {
	report, err := Run(load(t, "mixed.yaml"), DefaultOptions())
	require.NoError(t, err)

	data, err := report.JSON(true)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"request_id": "req_`)

	parsed, err := ParseReport(data)
	require.NoError(t, err)
	assert.Equal(t, report, parsed)
}
