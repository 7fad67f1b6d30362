// Package config defines the typed configuration tree of a cuebox project
// and its TOML decoding. Every recognized key is enumerated here; unknown
// keys at any structural level are configuration errors, reported with the
// offending key path.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cuebox-audio/cuebox/internal/channel"
)

// Error is a configuration error carrying the offending key path.
type Error struct {
	Key string
	Msg string
	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Key == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Key, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errf(key, format string, args ...any) *Error {
	return &Error{Key: key, Msg: fmt.Sprintf(format, args...)}
}

// Root is the full parsed configuration tree.
type Root struct {
	Configure Configure `toml:"configure"`

	// Cue maps cue name -> module type -> replication index -> overrides.
	Cue map[string]map[string]map[string]RawParams `toml:"cue"`

	// CueOrder lists cue names in file order; populated during Load.
	CueOrder []string `toml:"-"`
}

type Configure struct {
	Name   string                     `toml:"name"`
	Audio  Audio                      `toml:"audio"`
	Input  Input                      `toml:"input"`
	Output Output                     `toml:"output"`
	Module map[string]map[string]Slot `toml:"module"`
}

type Audio struct {
	SamplingRate int `toml:"sampling_rate"`
	BufferSize   int `toml:"buffer_size"`
	ChannelCount int `toml:"channel_count"`
	InputCount   int `toml:"input_channel_count"`
}

// Input configures the physical input side: the global routing of device
// channels onto the input bus, and the MIDI control list giving every
// (controller, channel) pair a stable index.
type Input struct {
	ChannelMapping  RawMapping `toml:"channel_mapping"`
	MidiControlList [][2]int   `toml:"midi_control_list"`
}

type Output struct {
	ChannelMapping RawMapping `toml:"channel_mapping"`
	Decibel        float64    `toml:"decibel"`
}

// Slot configures one replication of a module type.
type Slot struct {
	AutoStop        *bool      `toml:"auto_stop"`
	FadeInDuration  *float64   `toml:"fade_in_duration"`
	FadeOutDuration *float64   `toml:"fade_out_duration"`
	ChannelMapping  RawMapping `toml:"channel_mapping"`
	InputMapping    RawMapping `toml:"input_channel_mapping"`
	DefaultDict     RawParams  `toml:"default_dict"`
}

// RawMapping holds a channel mapping as decoded from TOML, where keys are
// strings and values are an int or a list of ints.
type RawMapping map[string]any

// RawParams holds a parameter dict as decoded from TOML. Values are scalars,
// breakpoint lists, or binding tables; see ParamSpec.
type RawParams map[string]any

// ParamSpec is one parsed parameter setting.
type ParamSpec struct {
	Value    float64
	Str      string
	IsStr    bool
	Envelope [][2]float64 // breakpoints (seconds, value); nil for scalars

	MidiControlIndex int // -1 when the parameter is not MIDI bound
	MidiLow          float64
	MidiHigh         float64
}

const (
	DefaultSamplingRate    = 44100
	DefaultBufferSize      = 256
	DefaultChannelCount    = 2
	DefaultFadeInDuration  = 0.1
	DefaultFadeOutDuration = 0.2
)

// Load parses and validates a TOML configuration document.
func Load(data []byte) (*Root, error) {
	var root Root
	md, err := toml.Decode(string(data), &root)
	if err != nil {
		return nil, &Error{Msg: "malformed configuration", Err: err}
	}
	for _, key := range md.Undecoded() {
		if paramTableKey(key) {
			continue
		}
		return nil, errf(key.String(), "unknown configuration key")
	}
	root.CueOrder = cueOrder(md)
	if err := root.validate(); err != nil {
		return nil, err
	}
	return &root, nil
}

// LoadFile reads and parses a TOML configuration file.
func LoadFile(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("cannot read configuration file %s", path), Err: err}
	}
	return Load(data)
}

// paramTableKey reports whether a decoder key lies inside a parameter dict.
// The decoder cannot see into default_dict and cue override tables, which
// decode into RawParams values; parseParamSpec validates those keys instead.
func paramTableKey(key toml.Key) bool {
	if len(key) >= 6 && key[0] == "configure" && key[1] == "module" && key[4] == "default_dict" {
		return true
	}
	return len(key) >= 5 && key[0] == "cue"
}

// cueOrder recovers the file order of cue declarations from the decoder
// metadata, since the cue map itself is unordered.
func cueOrder(md toml.MetaData) []string {
	var order []string
	seen := map[string]bool{}
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != "cue" {
			continue
		}
		name := key[1]
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	return order
}

func (r *Root) validate() error {
	a := &r.Configure.Audio
	if a.SamplingRate == 0 {
		a.SamplingRate = DefaultSamplingRate
	}
	if a.SamplingRate < 0 {
		return errf("configure.audio.sampling_rate", "must be positive, got %d", a.SamplingRate)
	}
	if a.BufferSize == 0 {
		a.BufferSize = DefaultBufferSize
	}
	if a.BufferSize < 16 || a.BufferSize > 8192 {
		return errf("configure.audio.buffer_size", "must be in [16, 8192], got %d", a.BufferSize)
	}
	if a.ChannelCount == 0 {
		a.ChannelCount = DefaultChannelCount
	}
	if a.ChannelCount < 0 {
		return errf("configure.audio.channel_count", "must be positive, got %d", a.ChannelCount)
	}
	if a.InputCount < 0 {
		return errf("configure.audio.input_channel_count", "must be non-negative, got %d", a.InputCount)
	}

	for typeName, replications := range r.Configure.Module {
		for repKey, slot := range replications {
			key := "configure.module." + typeName + "." + repKey
			if _, err := strconv.Atoi(repKey); err != nil {
				return errf(key, "replication index must be a non-negative integer")
			}
			if n, _ := strconv.Atoi(repKey); n < 0 {
				return errf(key, "replication index must be non-negative")
			}
			if slot.FadeInDuration != nil && *slot.FadeInDuration < 0 {
				return errf(key+".fade_in_duration", "must be non-negative")
			}
			if slot.FadeOutDuration != nil && *slot.FadeOutDuration < 0 {
				return errf(key+".fade_out_duration", "must be non-negative")
			}
		}
	}

	for i, mc := range r.Configure.Input.MidiControlList {
		key := fmt.Sprintf("configure.input.midi_control_list[%d]", i)
		if mc[0] < 0 || mc[0] > 127 {
			return errf(key, "control number must be in [0, 127], got %d", mc[0])
		}
		if mc[1] < 0 || mc[1] > 15 {
			return errf(key, "midi channel must be in [0, 15], got %d", mc[1])
		}
	}
	return nil
}

// Mapping converts a raw TOML channel mapping into a channel.Mapping,
// reporting malformed keys and values under the given key path.
func (rm RawMapping) Mapping(keyPath string) (channel.Mapping, error) {
	if rm == nil {
		return nil, nil
	}
	m := make(channel.Mapping, len(rm))
	for rawKey, rawVal := range rm {
		src, err := strconv.Atoi(rawKey)
		if err != nil || src < 0 {
			return nil, errf(keyPath+"."+rawKey, "source channel must be a non-negative integer")
		}
		dsts, ok := intList(rawVal)
		if !ok {
			return nil, errf(keyPath+"."+rawKey, "destination must be a channel index or list of channel indices")
		}
		m[src] = dsts
	}
	return m, nil
}

func intList(v any) ([]int, bool) {
	switch val := v.(type) {
	case int64:
		return []int{int(val)}, true
	case []any:
		out := make([]int, 0, len(val))
		for _, item := range val {
			n, ok := item.(int64)
			if !ok {
				return nil, false
			}
			out = append(out, int(n))
		}
		return out, true
	default:
		return nil, false
	}
}

// Params parses a raw parameter dict into named ParamSpecs.
func (rp RawParams) Params(keyPath string) (map[string]ParamSpec, error) {
	if rp == nil {
		return nil, nil
	}
	out := make(map[string]ParamSpec, len(rp))
	for name, raw := range rp {
		spec, err := parseParamSpec(raw, keyPath+"."+name)
		if err != nil {
			return nil, err
		}
		out[name] = spec
	}
	return out, nil
}

func parseParamSpec(raw any, keyPath string) (ParamSpec, error) {
	spec := ParamSpec{MidiControlIndex: -1}
	switch v := raw.(type) {
	case float64:
		spec.Value = v
		return spec, nil
	case int64:
		spec.Value = float64(v)
		return spec, nil
	case string:
		spec.Str = v
		spec.IsStr = true
		return spec, nil
	case bool:
		if v {
			spec.Value = 1
		}
		return spec, nil
	case []any:
		env, ok := breakpoints(v)
		if !ok {
			return spec, errf(keyPath, "envelope must be a list of [time, value] pairs")
		}
		spec.Envelope = env
		return spec, nil
	case map[string]any:
		rangeSeen := false
		for key, val := range v {
			switch key {
			case "value":
				f, ok := floatValue(val)
				if !ok {
					return spec, errf(keyPath+".value", "must be a number")
				}
				spec.Value = f
			case "midi_control_index":
				n, ok := val.(int64)
				if !ok || n < 0 {
					return spec, errf(keyPath+".midi_control_index", "must be a non-negative integer")
				}
				spec.MidiControlIndex = int(n)
			case "midi_range":
				pair, ok := val.([]any)
				if !ok || len(pair) != 2 {
					return spec, errf(keyPath+".midi_range", "must be a [low, high] pair")
				}
				lo, okLo := floatValue(pair[0])
				hi, okHi := floatValue(pair[1])
				if !okLo || !okHi {
					return spec, errf(keyPath+".midi_range", "must be a [low, high] pair of numbers")
				}
				spec.MidiLow, spec.MidiHigh = lo, hi
				rangeSeen = true
			default:
				return spec, errf(keyPath+"."+key, "unknown parameter setting")
			}
		}
		if spec.MidiControlIndex >= 0 && !rangeSeen {
			spec.MidiLow, spec.MidiHigh = 0, 1
		}
		return spec, nil
	default:
		return spec, errf(keyPath, "unsupported parameter value of type %T", raw)
	}
}

func breakpoints(items []any) ([][2]float64, bool) {
	env := make([][2]float64, 0, len(items))
	for _, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, false
		}
		t, okT := floatValue(pair[0])
		v, okV := floatValue(pair[1])
		if !okT || !okV {
			return nil, false
		}
		env = append(env, [2]float64{t, v})
	}
	return env, true
}

func floatValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

// SlotKey formats the canonical key path of a module slot declaration.
func SlotKey(typeName string, replication int) string {
	return strings.Join([]string{"configure.module", typeName, strconv.Itoa(replication)}, ".")
}
