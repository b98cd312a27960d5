// Package audio holds small helpers for 16-bit little-endian PCM as it moves
// between the browser, the STT stream and the TTS backends.
package audio

import (
	"fmt"
	"time"
)

// Format describes interleaved 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Speech is the format STT backends expect and TTS backends are asked to
// produce.
var Speech = Format{SampleRate: 16000, Channels: 1}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Valid reports whether f can be converted.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && (f.Channels == 1 || f.Channels == 2)
}

// frameSize is the number of bytes per sample frame.
func (f Format) frameSize() int { return 2 * f.Channels }

// Duration returns the playback time of n bytes in this format.
func (f Format) Duration(n int) time.Duration {
	if !f.Valid() || n <= 0 {
		return 0
	}
	frames := n / f.frameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Convert downmixes stereo to mono when needed and resamples pcm from src to
// dst. Trailing bytes that do not form a whole frame are dropped. Only mono
// and stereo are supported; other formats return pcm unchanged.
func Convert(pcm []byte, src, dst Format) []byte {
	if !src.Valid() || !dst.Valid() {
		return pcm
	}
	pcm = pcm[:len(pcm)-len(pcm)%src.frameSize()]
	if src == dst {
		return pcm
	}

	mono := pcm
	if src.Channels == 2 {
		mono = downmix(pcm)
	}
	mono = resample(mono, src.SampleRate, dst.SampleRate)
	if dst.Channels == 2 {
		return upmix(mono)
	}
	return mono
}

func sample(pcm []byte, i int) int16 {
	return int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
}

func putSample(out []byte, i int, s int16) {
	out[2*i] = byte(s)
	out[2*i+1] = byte(s >> 8)
}

// downmix averages the two channels of each frame.
func downmix(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(sample(pcm, 2*i)) + int32(sample(pcm, 2*i+1))) / 2
		putSample(out, i, int16(avg))
	}
	return out
}

// upmix duplicates each mono sample into both channels.
func upmix(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		s := sample(pcm, i)
		putSample(out, 2*i, s)
		putSample(out, 2*i+1, s)
	}
	return out
}

// resample converts mono PCM between rates with linear interpolation.
func resample(pcm []byte, srcRate, dstRate int) []byte {
	n := len(pcm) / 2
	if srcRate == dstRate || n == 0 {
		return pcm
	}
	outN := int(int64(n) * int64(dstRate) / int64(srcRate))
	out := make([]byte, outN*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range outN {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		a := sample(pcm, idx)
		b := a
		if idx+1 < n {
			b = sample(pcm, idx+1)
		}
		putSample(out, i, int16(float64(a)*(1-frac)+float64(b)*frac))
	}
	return out
}

// Drain reads ch until it is closed so the producing goroutine can exit.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
