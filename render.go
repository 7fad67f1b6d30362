package cuebox

import (
	"encoding/binary"
	"math"

	"github.com/cuebox-audio/cuebox/internal/audiohost"
)

// RenderSeconds renders the current transport state offline for the given
// duration and returns the interleaved output samples. It drives the graph
// through a virtual host, so no audio device is needed; combined with the
// cue transport it bounces a cue to a buffer for inspection or export.
func (b *Backend) RenderSeconds(seconds float64) []float32 {
	blocks := int(seconds * float64(b.SampleRate()) / float64(b.BufferSize()))
	if blocks < 1 {
		blocks = 1
	}
	host := audiohost.NewVirtual(b.BufferSize(), b.InputChannelCount(), b.ChannelCount(), b)
	_ = host.Start()
	out := host.StepN(blocks)
	return Interleave(out)
}

// Interleave flattens per-channel sample slices into one interleaved
// buffer.
func Interleave(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	frames := len(channels[0])
	out := make([]float32, 0, frames*len(channels))
	for i := 0; i < frames; i++ {
		for c := range channels {
			out = append(out, channels[c][i])
		}
	}
	return out
}

// EncodeWAVFloat32LE wraps interleaved samples in a float32 WAV container.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
