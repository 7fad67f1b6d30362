// Package cue holds the declared cue list and the transport state machine
// that moves between cues. The manager runs in the control context; every
// mutation of the audio graph is published through the graph's op queue and
// takes effect at the next block boundary.
package cue

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/cuebox-audio/cuebox/internal/config"
	"github.com/cuebox-audio/cuebox/internal/graph"
	"github.com/cuebox-audio/cuebox/internal/module"
)

// ErrPlaying rejects navigation while the transport is running. The active
// cue is only ever replaced through an explicit stop.
var ErrPlaying = errors.New("cue is playing")

// ErrNoCues is returned by transport operations on an empty cue list.
var ErrNoCues = errors.New("no cues declared")

// Entry is one module slot participating in a cue, with the parameter
// overrides the cue applies on play.
type Entry struct {
	ID     module.ID
	Values map[string]module.Value
}

// Cue is a named scene: the set of participating slots and their overrides.
// A cue with no entries is valid and plays silence.
type Cue struct {
	Name    string
	Entries []Entry
}

// BuildAll parses every declared cue in file order, validating that each
// referenced module slot exists in the graph. Overrides are applied to a
// scratch instance of the slot's type, so unknown parameter names fail here
// rather than at play time. Modules that pre-decode media are prepared for
// every parameter set they will see.
func BuildAll(cfg *config.Root, g *graph.Graph) ([]*Cue, error) {
	cues := make([]*Cue, 0, len(cfg.CueOrder))
	for _, name := range cfg.CueOrder {
		c := &Cue{Name: name}
		for typeName, replications := range cfg.Cue[name] {
			for replKey, raw := range replications {
				keyPath := fmt.Sprintf("cue.%s.%s.%s", name, typeName, replKey)
				repl, err := strconv.Atoi(replKey)
				if err != nil || repl < 0 {
					return nil, &config.Error{Key: keyPath, Msg: "replication index must be a non-negative integer"}
				}
				id := module.ID{Type: typeName, Replication: repl}
				slot, ok := g.Slot(id)
				if !ok {
					return nil, &config.Error{Key: keyPath, Msg: "cue references an undeclared module slot"}
				}
				specs, err := raw.Params(keyPath)
				if err != nil {
					return nil, err
				}
				for pname, spec := range specs {
					if spec.MidiControlIndex >= 0 {
						return nil, &config.Error{
							Key: keyPath + "." + pname,
							Msg: "midi bindings are declared in default_dict, not in cues",
						}
					}
				}
				values := graph.SpecValues(specs)
				dry, err := module.New(typeName, g.Context())
				if err != nil {
					return nil, &config.Error{Key: keyPath, Err: err}
				}
				if err := dry.Configure(values); err != nil {
					return nil, &config.Error{Key: keyPath, Err: err}
				}
				if p, ok := slot.Module.(module.Preparer); ok {
					if err := p.Prepare(values); err != nil {
						return nil, &config.Error{Key: keyPath, Err: err}
					}
				}
				c.Entries = append(c.Entries, Entry{ID: id, Values: values})
			}
		}
		cues = append(cues, c)
	}
	return cues, nil
}

// State is the transport state.
type State uint8

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// Manager is the cue transport. It owns the selection index and the
// idle/playing state; all methods are safe for concurrent use from the
// control context.
type Manager struct {
	mu    sync.Mutex
	g     *graph.Graph
	log   *slog.Logger
	cues  []*Cue
	index map[string]int

	current int
	state   State
}

// NewManager builds a transport over the given cue list. The first cue in
// file order starts selected.
func NewManager(g *graph.Graph, log *slog.Logger, cues []*Cue) *Manager {
	index := make(map[string]int, len(cues))
	for i, c := range cues {
		index[c.Name] = i
	}
	return &Manager{g: g, log: log, cues: cues, index: index}
}

// Names returns the cue names in declaration order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.cues))
	for i, c := range m.cues {
		names[i] = c.Name
	}
	return names
}

// State reports the current transport state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the selected cue, or nil when no cues are declared.
func (m *Manager) Current() *Cue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cues) == 0 {
		return nil
	}
	return m.cues[m.current]
}

// Select moves the selection to a named cue. Selection is rejected while
// the transport is playing.
func (m *Manager) Select(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Playing {
		return ErrPlaying
	}
	i, ok := m.index[name]
	if !ok {
		return fmt.Errorf("unknown cue %q", name)
	}
	m.current = i
	return nil
}

// Next advances the selection by one cue, wrapping past the end.
func (m *Manager) Next() error { return m.step(1) }

// Previous moves the selection back by one cue, wrapping past the start.
func (m *Manager) Previous() error { return m.step(-1) }

func (m *Manager) step(delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Playing {
		return ErrPlaying
	}
	if len(m.cues) == 0 {
		return ErrNoCues
	}
	m.current = (m.current + delta + len(m.cues)) % len(m.cues)
	return nil
}

// Play starts the selected cue from idle: participating slots get their
// overrides applied and fade in; slots still fading out from a previous cue
// that are not part of this one fade out, unless they opted out of auto
// stop. Playing an empty cue yields silence. Play returns once the
// transition is published.
func (m *Manager) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Playing {
		return ErrPlaying
	}
	if len(m.cues) == 0 {
		return ErrNoCues
	}
	c := m.cues[m.current]
	participating := make(map[module.ID]bool, len(c.Entries))
	for _, e := range c.Entries {
		participating[e.ID] = true
	}
	entries := c.Entries
	m.g.Do(func() {
		for _, s := range m.g.Slots() {
			if s.Active() && s.AutoStop && !participating[s.ID] {
				s.Stop()
			}
		}
		for _, e := range entries {
			s, ok := m.g.Slot(e.ID)
			if !ok {
				continue
			}
			if len(e.Values) > 0 {
				if err := s.Module.Configure(e.Values); err != nil {
					m.log.Warn("cue override dropped",
						"cue", c.Name, "slot", s.ID.String(), "error", err)
				}
			}
			s.Start()
		}
	})
	m.state = Playing
	return nil
}

// Stop fades out the running slots and returns the transport to idle.
// Slots that opted out of auto stop keep sounding across the idle gap, so
// a drone started in one cue can carry into the next; StopAll silences
// them too. Stopping while idle is a no-op. Module playback positions are
// preserved, so a later play resumes where the stop happened.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Idle {
		return
	}
	m.g.Do(func() {
		for _, s := range m.g.Slots() {
			if s.AutoStop {
				s.Stop()
			}
		}
	})
	m.state = Idle
}

// StopAll fades out every running slot, including those that opted out of
// auto stop, and returns the transport to idle.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.g.Do(func() {
		for _, s := range m.g.Slots() {
			s.Stop()
		}
	})
	m.state = Idle
}

// JumpTo moves the playback position of every slot in the selected cue.
// While playing the seek happens inside a short gain dip; while idle only
// the stored positions move. Negative positions clamp to zero.
func (m *Manager) JumpTo(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cues) == 0 {
		return ErrNoCues
	}
	if seconds < 0 {
		seconds = 0
	}
	c := m.cues[m.current]
	m.g.Do(func() {
		for _, e := range c.Entries {
			if s, ok := m.g.Slot(e.ID); ok {
				s.JumpTo(seconds)
			}
		}
	})
	return nil
}

// Duration reports the selected cue's duration: the longest duration any
// participating slot reports, or 0 when nothing reports one.
func (m *Manager) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cues) == 0 {
		return 0
	}
	var d float64
	for _, e := range m.cues[m.current].Entries {
		if s, ok := m.g.Slot(e.ID); ok {
			if sd := s.Duration(); sd > d {
				d = sd
			}
		}
	}
	return d
}
