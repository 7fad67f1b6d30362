package graph

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/cuebox-audio/cuebox/internal/channel"
	"github.com/cuebox-audio/cuebox/internal/config"
	"github.com/cuebox-audio/cuebox/internal/module"
)

// dipSeconds bounds the gain dip used for a seek while a slot is audible.
const dipSeconds = 0.05

// Build instantiates every declared module slot, applies its default
// parameters and resolves all channel routes. Configuration mistakes
// (unknown module types, bad parameters) surface as *config.Error with the
// offending key path; unresolvable routes surface as *RoutingError.
func Build(cfg *config.Root, log *slog.Logger) (*Graph, error) {
	ctx := module.Context{
		SampleRate: cfg.Configure.Audio.SamplingRate,
		BufferSize: cfg.Configure.Audio.BufferSize,
	}
	busChannels := cfg.Configure.Audio.ChannelCount

	outputMapping, err := cfg.Configure.Output.ChannelMapping.Mapping("configure.output.channel_mapping")
	if err != nil {
		return nil, err
	}
	g, err := New(ctx, log, busChannels, busChannels, outputMapping, cfg.Configure.Output.Decibel)
	if err != nil {
		return nil, err
	}

	// the global input stage routes physical device channels onto the
	// input bus every per-slot input mapping reads from
	inputCount := cfg.Configure.Audio.InputCount
	inputMapping, err := cfg.Configure.Input.ChannelMapping.Mapping("configure.input.channel_mapping")
	if err != nil {
		return nil, err
	}
	if inputMapping == nil {
		inputMapping = channel.Identity(inputCount)
	}
	inputTable, err := inputMapping.Resolve(inputCount, inputCount)
	if err != nil {
		return nil, &RoutingError{Context: "configure.input.channel_mapping", Err: err}
	}

	for _, typeName := range sortedKeys(cfg.Configure.Module) {
		if !module.Known(typeName) {
			return nil, &config.Error{
				Key: "configure.module." + typeName,
				Msg: "unknown module type",
			}
		}
		replications := cfg.Configure.Module[typeName]
		for _, replKey := range sortedKeys(replications) {
			repl, convErr := strconv.Atoi(replKey)
			if convErr != nil || repl < 0 {
				return nil, &config.Error{
					Key: "configure.module." + typeName + "." + replKey,
					Msg: "replication index must be a non-negative integer",
				}
			}
			slot, buildErr := buildSlot(cfg, ctx, typeName, repl, replications[replKey], busChannels, inputTable)
			if buildErr != nil {
				return nil, buildErr
			}
			if addErr := g.AddSlot(slot); addErr != nil {
				return nil, &config.Error{Key: config.SlotKey(typeName, repl), Err: addErr}
			}
		}
	}
	return g, nil
}

func buildSlot(cfg *config.Root, ctx module.Context, typeName string, repl int, sc config.Slot, busChannels int, inputTable channel.Table) (*module.Slot, error) {
	keyPath := config.SlotKey(typeName, repl)

	mod, err := module.New(typeName, ctx)
	if err != nil {
		return nil, &config.Error{Key: keyPath, Err: err}
	}
	specs, err := sc.DefaultDict.Params(keyPath + ".default_dict")
	if err != nil {
		return nil, err
	}
	values := SpecValues(specs)
	if err := mod.Configure(values); err != nil {
		return nil, &config.Error{Key: keyPath + ".default_dict", Err: err}
	}
	if p, ok := mod.(module.Preparer); ok {
		if err := p.Prepare(values); err != nil {
			return nil, &config.Error{Key: keyPath + ".default_dict", Err: err}
		}
	}

	fadeIn := config.DefaultFadeInDuration
	if sc.FadeInDuration != nil {
		fadeIn = *sc.FadeInDuration
	}
	fadeOut := config.DefaultFadeOutDuration
	if sc.FadeOutDuration != nil {
		fadeOut = *sc.FadeOutDuration
	}
	autoStop := true
	if sc.AutoStop != nil {
		autoStop = *sc.AutoStop
	}

	slot := &module.Slot{
		ID:            module.ID{Type: typeName, Replication: repl},
		Module:        mod,
		AutoStop:      autoStop,
		FadeInFrames:  frames(fadeIn, ctx.SampleRate),
		FadeOutFrames: frames(fadeOut, ctx.SampleRate),
	}
	slot.DipFrames = min(slot.FadeOutFrames, frames(dipSeconds, ctx.SampleRate))

	outMapping, err := sc.ChannelMapping.Mapping(keyPath + ".channel_mapping")
	if err != nil {
		return nil, err
	}
	if outMapping == nil {
		outMapping = channel.Identity(min(mod.ChannelCount(), busChannels))
	}
	slot.OutTable, err = outMapping.Resolve(mod.ChannelCount(), busChannels)
	if err != nil {
		return nil, &RoutingError{Context: keyPath + ".channel_mapping", Err: err}
	}

	if c, ok := mod.(module.InputConsumer); ok {
		inputCount := cfg.Configure.Audio.InputCount
		inMapping, err := sc.InputMapping.Mapping(keyPath + ".input_channel_mapping")
		if err != nil {
			return nil, err
		}
		if inMapping == nil {
			inMapping = channel.Identity(min(inputCount, c.InputChannelCount()))
		}
		slotTable, err := inMapping.Resolve(inputCount, c.InputChannelCount())
		if err != nil {
			return nil, &RoutingError{Context: keyPath + ".input_channel_mapping", Err: err}
		}
		slot.InTable = channel.Compose(inputTable, slotTable)
	}
	return slot, nil
}

// SpecValues converts parsed parameter specs into module values.
func SpecValues(specs map[string]config.ParamSpec) map[string]module.Value {
	if specs == nil {
		return nil
	}
	out := make(map[string]module.Value, len(specs))
	for name, spec := range specs {
		out[name] = specValue(spec)
	}
	return out
}

func specValue(spec config.ParamSpec) module.Value {
	switch {
	case spec.IsStr:
		return module.String(spec.Str)
	case spec.Envelope != nil:
		return module.Env(spec.Envelope)
	default:
		return module.Scalar(spec.Value)
	}
}

func frames(seconds float64, sampleRate int) int {
	n := int(seconds * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return n
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
