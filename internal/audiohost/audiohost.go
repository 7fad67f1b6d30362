// Package audiohost drives the production context: it owns the master
// audio loop that pulls one block at a time from a renderer. The real host
// sits on portaudio; the virtual host advances block by block under test
// control, so transport behavior can be asserted without wall-clock time.
package audiohost

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Renderer produces one block of audio per call. in carries the physical
// input channels (nil when the host opens no inputs), out the physical
// output channels.
type Renderer interface {
	Render(in, out [][]float32)
}

// Host is the master audio loop. Start and Stop control the loop without
// tearing down the device; Close releases it.
type Host interface {
	Start() error
	Stop() error
	Close() error
}

var errClosed = errors.New("audio host closed")

// PortAudio is the live host. The device callback runs the renderer
// directly; no copying happens between the device buffers and the graph.
type PortAudio struct {
	stream  *portaudio.Stream
	running bool
	closed  bool
}

// NewPortAudio initializes portaudio and opens the default duplex stream.
func NewPortAudio(sampleRate, bufferSize, inputChannels, outputChannels int, r Renderer) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(
		inputChannels, outputChannels,
		float64(sampleRate), bufferSize,
		func(in, out [][]float32) {
			r.Render(in, out)
		},
	)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open audio stream: %w", err)
	}
	return &PortAudio{stream: stream}, nil
}

func (h *PortAudio) Start() error {
	if h.closed {
		return errClosed
	}
	if h.running {
		return nil
	}
	if err := h.stream.Start(); err != nil {
		return err
	}
	h.running = true
	return nil
}

func (h *PortAudio) Stop() error {
	if h.closed || !h.running {
		return nil
	}
	h.running = false
	return h.stream.Stop()
}

func (h *PortAudio) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.running {
		_ = h.stream.Stop()
	}
	err := h.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// Virtual is the deterministic host used by tests and offline rendering.
// Nothing happens until Step is called; each step renders exactly one
// block, so time advances only when the test says so.
type Virtual struct {
	in      [][]float32
	out     [][]float32
	r       Renderer
	running bool
}

// NewVirtual builds a virtual host with the given channel layout.
func NewVirtual(bufferSize, inputChannels, outputChannels int, r Renderer) *Virtual {
	v := &Virtual{r: r}
	if inputChannels > 0 {
		v.in = block(inputChannels, bufferSize)
	}
	v.out = block(outputChannels, bufferSize)
	return v
}

func block(channels, frames int) [][]float32 {
	b := make([][]float32, channels)
	for i := range b {
		b[i] = make([]float32, frames)
	}
	return b
}

func (v *Virtual) Start() error { v.running = true; return nil }
func (v *Virtual) Stop() error  { v.running = false; return nil }
func (v *Virtual) Close() error { v.running = false; return nil }

// Input exposes the host's input block for tests to fill before stepping.
func (v *Virtual) Input() [][]float32 { return v.in }

// Step renders one block and returns the host's output buffer. The buffer
// is reused between steps; callers that accumulate must copy. Stepping a
// stopped host renders silence.
func (v *Virtual) Step() [][]float32 {
	if !v.running {
		for _, ch := range v.out {
			for i := range ch {
				ch[i] = 0
			}
		}
		return v.out
	}
	v.r.Render(v.in, v.out)
	return v.out
}

// StepN renders n blocks and returns the concatenated output, one slice
// per channel.
func (v *Virtual) StepN(n int) [][]float32 {
	frames := len(v.out[0])
	acc := block(len(v.out), n*frames)
	for b := 0; b < n; b++ {
		out := v.Step()
		for c := range out {
			copy(acc[c][b*frames:], out[c])
		}
	}
	return acc
}
