package module

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// ErrNoMedia marks a sound file player asked to produce audio before any
// media was loaded. The graph substitutes silence for the affected slot.
var ErrNoMedia = errors.New("no media loaded")

func init() {
	Register("sound_file_player", newSoundFilePlayer)
}

// pcm is a fully decoded stereo sound file, resampled to the engine rate.
type pcm struct {
	left, right []float32
	duration    float64
}

// SoundFilePlayer plays decoded sound files from memory. Decoding happens at
// graph build time (via Prepare/Configure); switching between prepared files
// at a cue boundary is a pointer swap. The read position persists across
// stop/start cycles; only JumpTo moves it.
type SoundFilePlayer struct {
	ctx     Context
	decibel *Param
	loop    bool

	path    string
	cache   map[string]*pcm
	current *pcm
	readPos int
}

func newSoundFilePlayer(ctx Context) (Module, error) {
	return &SoundFilePlayer{
		ctx:     ctx,
		decibel: NewParam(ctx.SampleRate, 0),
		cache:   map[string]*pcm{},
	}, nil
}

func (p *SoundFilePlayer) Configure(values map[string]Value) error {
	for name, v := range values {
		switch name {
		case "path":
			if !v.IsStr {
				return fmt.Errorf("path must be a string")
			}
			if err := p.setPath(v.Str); err != nil {
				return err
			}
		case "loop":
			p.loop = v.Scalar != 0
		case "decibel":
			p.decibel.Apply(v)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
		}
	}
	return nil
}

// Prepare decodes any file referenced by the values without activating it,
// so a later Configure at a block boundary never touches the disk.
func (p *SoundFilePlayer) Prepare(values map[string]Value) error {
	v, ok := values["path"]
	if !ok || !v.IsStr {
		return nil
	}
	_, err := p.load(v.Str)
	return err
}

func (p *SoundFilePlayer) setPath(path string) error {
	if path == p.path && p.current != nil {
		return nil
	}
	buf, err := p.load(path)
	if err != nil {
		return err
	}
	p.path = path
	p.current = buf
	p.readPos = 0
	return nil
}

func (p *SoundFilePlayer) load(path string) (*pcm, error) {
	if buf, ok := p.cache[path]; ok {
		return buf, nil
	}
	buf, err := decodeFile(path, p.ctx.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("sound file %s: %w", path, err)
	}
	p.cache[path] = buf
	return buf, nil
}

func (p *SoundFilePlayer) SetParameter(name string, value float64) error {
	switch name {
	case "decibel":
		p.decibel.Set(value)
	case "loop":
		p.loop = value != 0
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return nil
}

func (p *SoundFilePlayer) ChannelCount() int { return 2 }

func (p *SoundFilePlayer) Trigger() { p.decibel.Trigger() }

func (p *SoundFilePlayer) JumpTo(seconds float64) {
	if p.current == nil {
		return
	}
	pos := int(seconds * float64(p.ctx.SampleRate))
	if pos < 0 {
		pos = 0
	}
	if pos > len(p.current.left) {
		pos = len(p.current.left)
	}
	p.readPos = pos
}

// Position returns the current read position in seconds.
func (p *SoundFilePlayer) Position() float64 {
	return float64(p.readPos) / float64(p.ctx.SampleRate)
}

func (p *SoundFilePlayer) Duration() float64 {
	if p.current == nil {
		return 0
	}
	return p.current.duration
}

func (p *SoundFilePlayer) Process(_, out [][]float32) error {
	if p.current == nil {
		return ErrNoMedia
	}
	left, right := out[0], out[1]
	total := len(p.current.left)
	for i := range left {
		if p.readPos >= total {
			if !p.loop || total == 0 {
				left[i], right[i] = 0, 0
				continue
			}
			p.readPos = 0
		}
		amp := float32(DecibelToAmplitude(p.decibel.Next()))
		left[i] = p.current.left[p.readPos] * amp
		right[i] = p.current.right[p.readPos] * amp
		p.readPos++
	}
	return nil
}

// decodeFile reads a wav, mp3 or flac file fully into memory, resampling to
// the engine rate when the file rate differs.
func decodeFile(path string, sampleRate int) (*pcm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		isWav  bool
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".flac":
		stream, format, err = flac.Decode(f)
	default:
		stream, format, err = wav.Decode(f)
		isWav = true
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	defer stream.Close()

	var streamer beep.Streamer = stream
	if int(format.SampleRate) != sampleRate {
		streamer = beep.Resample(4, format.SampleRate, beep.SampleRate(sampleRate), stream)
	}

	// the wav decoder normalizes n-bit samples by 2^n-1 instead of 2^(n-1),
	// leaving integer PCM 6 dB low; scale so full scale lands at unity
	gain := 1.0
	if isWav && format.Precision > 0 {
		full := float64(uint64(1) << (8 * format.Precision))
		gain = (full - 1) / (full / 2)
	}

	buf := &pcm{}
	chunk := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(chunk)
		for _, frame := range chunk[:n] {
			buf.left = append(buf.left, clampSample(frame[0]*gain))
			buf.right = append(buf.right, clampSample(frame[1]*gain))
		}
		if !ok {
			break
		}
	}
	buf.duration = float64(len(buf.left)) / float64(sampleRate)
	return buf, nil
}

func clampSample(v float64) float32 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	if math.IsNaN(v) {
		v = 0
	}
	return float32(v)
}
