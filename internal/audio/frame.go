// Package audio provides PCM frame types and the capture sources that
// produce them.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns the playback duration of n bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Bytes returns the number of bytes covering d, aligned to whole samples.
func (f Format) Bytes(d time.Duration) int {
	n := int(int64(d) * int64(f.BytesPerSecond()) / int64(time.Second))
	align := f.Channels * 2
	if align <= 0 {
		return n
	}
	return n - n%align
}

// Frame is one block of PCM read from a source.
type Frame struct {
	Data      []byte
	Format    Format
	Sequence  uint64
	Timestamp time.Time
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	return f.Format.Duration(len(f.Data))
}

// RMS returns the normalized root-mean-square level of the frame in [0, 1].
func (f Frame) RMS() float64 {
	return RMS(f.Data)
}

// RMS computes the normalized RMS of s16le samples.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Concat joins the PCM payloads of frames.
func Concat(frames []Frame) []byte {
	size := 0
	for _, f := range frames {
		size += len(f.Data)
	}
	out := make([]byte, 0, size)
	for _, f := range frames {
		out = append(out, f.Data...)
	}
	return out
}

// Tone returns d of a constant-amplitude square wave at the given level in
// [0, 1]. It is used to synthesize speech-like energy.
func Tone(format Format, d time.Duration, level float64) []byte {
	n := format.Bytes(d)
	out := make([]byte, n)
	amp := int16(level * 32767)
	for i := 0; i+1 < n; i += 2 {
		v := amp
		if (i/2)%2 == 1 {
			v = -amp
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(v))
	}
	return out
}
