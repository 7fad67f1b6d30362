// Package cuebox is a declaratively configured cue engine for live
// electronics: a TOML file declares the module graph, the channel routing
// and an ordered cue list; the backend instantiates everything and exposes
// the cue transport plus MIDI parameter control over a real-time audio
// loop.
package cuebox

import (
	"errors"
	"log/slog"
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cuebox-audio/cuebox/internal/audiohost"
	"github.com/cuebox-audio/cuebox/internal/config"
	"github.com/cuebox-audio/cuebox/internal/cue"
	"github.com/cuebox-audio/cuebox/internal/graph"
	"github.com/cuebox-audio/cuebox/internal/midictl"
)

type BackendOption func(*backendConfig)

type backendConfig struct {
	log *slog.Logger
}

func defaultBackendConfig() backendConfig {
	return backendConfig{log: slog.Default()}
}

// WithLogger routes the backend's diagnostics through the given logger.
func WithLogger(log *slog.Logger) BackendOption {
	return func(cfg *backendConfig) {
		cfg.log = log
	}
}

// Backend is the composition root: the built module graph, the cue
// transport and the MIDI router, wired to one master audio loop.
type Backend struct {
	mu   sync.Mutex
	cfg  *config.Root
	log  *slog.Logger
	g    *graph.Graph
	cues *cue.Manager
	midi *midictl.Router

	host     audiohost.Host
	midiStop func()
}

// Load builds a backend from TOML configuration text. Every configuration
// mistake is reported before any audio device is touched: unknown module
// types, bad parameters and unknown keys surface as *config.Error with the
// offending key path, unresolvable channel routes as *graph.RoutingError.
func Load(data []byte, opts ...BackendOption) (*Backend, error) {
	cfg, err := config.Load(data)
	if err != nil {
		return nil, err
	}
	return build(cfg, opts)
}

// LoadFile builds a backend from a TOML configuration file.
func LoadFile(path string, opts ...BackendOption) (*Backend, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return build(cfg, opts)
}

func build(cfg *config.Root, opts []BackendOption) (*Backend, error) {
	bc := defaultBackendConfig()
	for _, opt := range opts {
		opt(&bc)
	}
	g, err := graph.Build(cfg, bc.log)
	if err != nil {
		return nil, err
	}
	cues, err := cue.BuildAll(cfg, g)
	if err != nil {
		return nil, err
	}
	router, err := midictl.NewRouter(cfg, g, bc.log)
	if err != nil {
		return nil, err
	}
	return &Backend{
		cfg:  cfg,
		log:  bc.log,
		g:    g,
		cues: cue.NewManager(g, bc.log, cues),
		midi: router,
	}, nil
}

// Name returns the configured project name.
func (b *Backend) Name() string { return b.cfg.Configure.Name }

// SampleRate returns the configured sampling rate.
func (b *Backend) SampleRate() int { return b.cfg.Configure.Audio.SamplingRate }

// BufferSize returns the configured block size in frames.
func (b *Backend) BufferSize() int { return b.cfg.Configure.Audio.BufferSize }

// ChannelCount returns the physical output channel count.
func (b *Backend) ChannelCount() int { return b.cfg.Configure.Audio.ChannelCount }

// InputChannelCount returns the physical input channel count.
func (b *Backend) InputChannelCount() int { return b.cfg.Configure.Audio.InputCount }

// Cues returns the cue transport.
func (b *Backend) Cues() *cue.Manager { return b.cues }

// MIDI returns the control router.
func (b *Backend) MIDI() *midictl.Router { return b.midi }

// Render produces one block of output. It implements the audio host
// renderer and may also be driven directly by a virtual host in tests or
// offline rendering.
func (b *Backend) Render(in, out [][]float32) {
	b.g.Render(in, out)
}

// SetOutputDecibel adjusts the master output gain. The change ramps in at
// the next block boundary.
func (b *Backend) SetOutputDecibel(db float64) {
	b.g.SetMasterDecibel(db)
}

// Start opens the audio device on first use and starts the master loop.
func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.host == nil {
		host, err := audiohost.NewPortAudio(
			b.SampleRate(), b.BufferSize(),
			b.InputChannelCount(), b.ChannelCount(), b)
		if err != nil {
			return err
		}
		b.host = host
	}
	return b.host.Start()
}

// Stop suspends the master loop. The device stays open for a later Start.
func (b *Backend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.host == nil {
		return nil
	}
	return b.host.Stop()
}

// ListenMIDI attaches the control router to a MIDI input port. Only one
// listener is active at a time.
func (b *Backend) ListenMIDI(in drivers.In) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.midiStop != nil {
		return errors.New("midi listener already attached")
	}
	stop, err := b.midi.Listen(in)
	if err != nil {
		return err
	}
	b.midiStop = stop
	return nil
}

// Close stops the transport, detaches the MIDI listener and releases the
// audio device.
func (b *Backend) Close() error {
	b.cues.StopAll()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.midiStop != nil {
		b.midiStop()
		b.midiStop = nil
	}
	if b.host == nil {
		return nil
	}
	err := b.host.Close()
	b.host = nil
	return err
}
