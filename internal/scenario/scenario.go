package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/AgentOS/hleipc/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/hleipc/internal/kernel"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format is a scenario file encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Descriptor kinds accepted in scenario files
const (
	KindRaw          = "raw"
	KindMoveHandles  = "move_handles"
	KindCopyHandles  = "copy_handles"
	KindCallingPid   = "calling_pid"
	KindStaticBuffer = "static_buffer"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is one request/reply cycle and the kernel state it runs against.
type Scenario struct {
	Name        string    `yaml:"name" toml:"name"`
	Description string    `yaml:"description" toml:"description"`
	Processes   []Process `yaml:"processes" toml:"processes"`
	Objects     []Object  `yaml:"objects" toml:"objects"`
	Handles     []Handle  `yaml:"handles" toml:"handles"`

	// Client sends the request and receives the reply. Server owns the
	// objects the reply hands out. Both default to the first two processes.
	Client string `yaml:"client" toml:"client"`
	Server string `yaml:"server" toml:"server"`

	Request Message  `yaml:"request" toml:"request"`
	Reply   *Message `yaml:"reply" toml:"reply"`
}

// Process declares a guest process and its mapped memory.
type Process struct {
	Name     string    `yaml:"name" toml:"name"`
	Mappings []Mapping `yaml:"mappings" toml:"mappings"`
}

// Mapping is one block of process memory filled with a single byte.
type Mapping struct {
	Address string `yaml:"address" toml:"address"`
	Size    int    `yaml:"size" toml:"size"`
	Fill    uint8  `yaml:"fill" toml:"fill"`
	// Perm is "r", "w" or "rw". Defaults to "rw".
	Perm string `yaml:"perm" toml:"perm"`
}

// Object declares a named kernel event.
type Object struct {
	Name string `yaml:"name" toml:"name"`
	// Reset is "oneshot", "sticky" or "pulse". Defaults to "oneshot".
	Reset string `yaml:"reset" toml:"reset"`
}

// Handle opens a handle to Object in Process's table.
type Handle struct {
	Name    string `yaml:"name" toml:"name"`
	Process string `yaml:"process" toml:"process"`
	Object  string `yaml:"object" toml:"object"`
}

// Message is a command buffer: a command id, normal words and translate
// descriptors.
type Message struct {
	Command uint16   `yaml:"command" toml:"command"`
	Normal  []string `yaml:"normal" toml:"normal"`

	Descriptors []Descriptor `yaml:"descriptors" toml:"descriptors"`

	// Translate overrides the translate count written into the header.
	Translate *int `yaml:"translate" toml:"translate"`

	// Receive registers the client's static buffer targets for the reply.
	Receive []Receive `yaml:"receive" toml:"receive"`
}

// Descriptor is one translate-section entry.
type Descriptor struct {
	Kind string `yaml:"kind" toml:"kind"`

	// Handles are the handle words of a handle list.
	Handles []string `yaml:"handles" toml:"handles"`

	// Value is the payload of a calling pid descriptor or the word of a raw
	// entry.
	Value string `yaml:"value" toml:"value"`

	// ID, Size and Address describe a static buffer. In a reply, Size and
	// Fill stage a fresh payload; a zero Size forwards whatever is staged.
	ID      uint8  `yaml:"id" toml:"id"`
	Size    int    `yaml:"size" toml:"size"`
	Address string `yaml:"address" toml:"address"`
	Fill    uint8  `yaml:"fill" toml:"fill"`
}

// Receive is a static buffer target the client registers for a reply.
type Receive struct {
	ID      uint8  `yaml:"id" toml:"id"`
	Size    int    `yaml:"size" toml:"size"`
	Address string `yaml:"address" toml:"address"`
}

// Load reads a scenario file, picking the format from its extension.
func Load(path string) (*Scenario, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// FormatFromPath maps a file extension to a Format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unsupported file extension %q", ErrInvalidScenario, filepath.Ext(path))
	}
}

// Parse decodes and validates a scenario.
func Parse(data []byte, format Format) (*Scenario, error) {
	var s Scenario
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidScenario, format)
	}

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Client == "" && len(s.Processes) > 0 {
		s.Client = s.Processes[0].Name
	}
	if s.Server == "" && len(s.Processes) > 1 {
		s.Server = s.Processes[1].Name
	}
	for i := range s.Processes {
		for j := range s.Processes[i].Mappings {
			if s.Processes[i].Mappings[j].Perm == "" {
				s.Processes[i].Mappings[j].Perm = "rw"
			}
		}
	}
}

// Validate checks names and references. Word syntax is checked when the
// scenario runs.
func (s *Scenario) Validate() error {
	processes := make(map[string]bool)
	for _, p := range s.Processes {
		if p.Name == "" {
			return invalid("process without a name")
		}
		if processes[p.Name] {
			return invalid("duplicate process %q", p.Name)
		}
		processes[p.Name] = true
		for _, m := range p.Mappings {
			if m.Size <= 0 {
				return invalid("process %q: mapping at %s has size %d", p.Name, m.Address, m.Size)
			}
			if _, err := parsePerm(m.Perm); err != nil {
				return invalid("process %q: %v", p.Name, err)
			}
		}
	}
	if !processes[s.Client] {
		return invalid("client process %q not declared", s.Client)
	}
	if s.Reply != nil && !processes[s.Server] {
		return invalid("server process %q not declared", s.Server)
	}

	objects := make(map[string]bool)
	for _, o := range s.Objects {
		if o.Name == "" {
			return invalid("object without a name")
		}
		if objects[o.Name] {
			return invalid("duplicate object %q", o.Name)
		}
		if _, err := parseReset(o.Reset); err != nil {
			return invalid("object %q: %v", o.Name, err)
		}
		objects[o.Name] = true
	}

	handles := make(map[string]bool)
	for _, h := range s.Handles {
		if h.Name == "" {
			return invalid("handle without a name")
		}
		if handles[h.Name] {
			return invalid("duplicate handle %q", h.Name)
		}
		if !processes[h.Process] {
			return invalid("handle %q: process %q not declared", h.Name, h.Process)
		}
		if !objects[h.Object] {
			return invalid("handle %q: object %q not declared", h.Name, h.Object)
		}
		handles[h.Name] = true
	}

	if err := s.Request.validate("request"); err != nil {
		return err
	}
	if s.Reply != nil {
		return s.Reply.validate("reply")
	}
	return nil
}

func (m *Message) validate(where string) error {
	if len(m.Normal) > ipc.MaxNormalCount {
		return invalid("%s: %d normal words, at most %d", where, len(m.Normal), ipc.MaxNormalCount)
	}
	for i, d := range m.Descriptors {
		switch d.Kind {
		case KindMoveHandles, KindCopyHandles:
			if n := len(d.Handles); n < 1 || n > ipc.MaxHandlesPerDescriptor {
				return invalid("%s: descriptor %d: %d handles", where, i, n)
			}
		case KindStaticBuffer:
			if d.ID > ipc.MaxStaticBufferID {
				return invalid("%s: descriptor %d: buffer id %d", where, i, d.ID)
			}
			if d.Size < 0 || d.Size > ipc.MaxStaticBufferSize {
				return invalid("%s: descriptor %d: buffer size %d", where, i, d.Size)
			}
		case KindRaw, KindCallingPid:
		default:
			return invalid("%s: descriptor %d: unknown kind %q", where, i, d.Kind)
		}
	}
	for _, r := range m.Receive {
		if r.ID > ipc.MaxStaticBufferID {
			return invalid("%s: receive buffer id %d", where, r.ID)
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
}

func parsePerm(s string) (kernel.Permission, error) {
	switch s {
	case "r":
		return kernel.PermRead, nil
	case "w":
		return kernel.PermWrite, nil
	case "rw", "":
		return kernel.PermReadWrite, nil
	default:
		return 0, fmt.Errorf("unknown permission %q", s)
	}
}

func parseReset(s string) (kernel.ResetType, error) {
	switch s {
	case "oneshot", "":
		return kernel.OneShot, nil
	case "sticky":
		return kernel.Sticky, nil
	case "pulse":
		return kernel.Pulse, nil
	default:
		return 0, fmt.Errorf("unknown reset type %q", s)
	}
}
