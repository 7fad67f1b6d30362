// Package module defines the pluggable audio module capability, the registry
// of named module types, and the ModuleSlot wrapper that gives every
// instantiated module its fade envelope and persistent playback state.
package module

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownParameter = errors.New("unknown parameter")

// Context carries the fixed audio properties modules are built against.
type Context struct {
	SampleRate int
	BufferSize int
}

// Value is one configured parameter setting: a scalar, a breakpoint
// envelope, or a string (used by settings like file paths).
type Value struct {
	Scalar   float64
	Envelope [][2]float64
	Str      string
	IsStr    bool
}

func Scalar(v float64) Value   { return Value{Scalar: v} }
func String(s string) Value    { return Value{Str: s, IsStr: true} }
func Env(p [][2]float64) Value { return Value{Envelope: p} }

// Module is the capability every processing unit implements. Process is
// called from the real-time production context and must not allocate or
// block; everything else is applied at block boundaries.
type Module interface {
	// Configure applies a full parameter set. Unknown names are errors,
	// surfaced at graph build time.
	Configure(values map[string]Value) error

	// Process renders one block into out. in carries the module's routed
	// input bus and may be nil for pure generators. A returned error marks
	// the block as failed; the caller substitutes silence.
	Process(in, out [][]float32) error

	// SetParameter adjusts a single scalar parameter.
	SetParameter(name string, value float64) error

	// ChannelCount reports the number of output channels produced.
	ChannelCount() int
}

// Seeker is implemented by modules with a seekable playback position.
type Seeker interface {
	JumpTo(seconds float64)
}

// DurationReporter is implemented by modules with a known finite duration.
type DurationReporter interface {
	Duration() float64
}

// InputConsumer is implemented by modules that read from an input bus.
type InputConsumer interface {
	InputChannelCount() int
}

// Preparer lets a module perform expensive work (file decoding) for a
// parameter set ahead of time, so a later Configure with the same values is
// cheap enough for a block boundary.
type Preparer interface {
	Prepare(values map[string]Value) error
}

// Triggerable is implemented by modules whose envelopes restart on play.
type Triggerable interface {
	Trigger()
}

// Factory builds one module instance.
type Factory func(ctx Context) (Module, error)

var registry = map[string]Factory{}

// Register adds a module type under a unique name. It panics on duplicates,
// matching the registration-at-init pattern.
func Register(name string, factory Factory) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("module: duplicate registration of %q", name))
	}
	registry[name] = factory
}

// New instantiates a registered module type.
func New(name string, ctx Context) (Module, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown module type %q", name)
	}
	return factory(ctx)
}

// Known reports whether a module type name is registered.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// TypeNames returns the registered module type names, sorted.
func TypeNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
