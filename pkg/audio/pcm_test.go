package audio

import (
	"testing"
	"time"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		putSample(out, i, s)
	}
	return out
}

func samplesOf(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = sample(pcm, i)
	}
	return out
}

func TestFormat_Duration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f    Format
		n    int
		want time.Duration
	}{
		{Speech, 32000, time.Second},
		{Speech, 3200, 100 * time.Millisecond},
		{Format{SampleRate: 48000, Channels: 2}, 192000, time.Second},
		{Format{}, 1000, 0},
		{Speech, -1, 0},
	}
	for _, tt := range tests {
		if got := tt.f.Duration(tt.n); got != tt.want {
			t.Errorf("%v.Duration(%d) = %v, want %v", tt.f, tt.n, got, tt.want)
		}
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()
	if got := (Format{SampleRate: 48000, Channels: 2}).String(); got != "48000Hz stereo" {
		t.Errorf("String = %q", got)
	}
	if got := Speech.String(); got != "16000Hz mono" {
		t.Errorf("String = %q", got)
	}
}

func TestConvert_SameFormatTrimsPartialFrame(t *testing.T) {
	t.Parallel()
	in := append(pcmOf(1, 2, 3), 0x7f)
	got := Convert(in, Speech, Speech)
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
}

func TestConvert_StereoToMono(t *testing.T) {
	t.Parallel()
	src := Format{SampleRate: 16000, Channels: 2}
	got := samplesOf(Convert(pcmOf(100, 300, -32768, -32768, 32767, 32767), src, Speech))
	want := []int16{200, -32768, 32767}
	if len(got) != len(want) {
		t.Fatalf("samples = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConvert_Downsample(t *testing.T) {
	t.Parallel()
	src := Format{SampleRate: 48000, Channels: 1}
	in := make([]int16, 480)
	for i := range in {
		in[i] = 1000
	}
	got := samplesOf(Convert(pcmOf(in...), src, Speech))
	if len(got) != 160 {
		t.Fatalf("len = %d, want 160", len(got))
	}
	for i, s := range got {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestConvert_UpsampleToStereo(t *testing.T) {
	t.Parallel()
	dst := Format{SampleRate: 32000, Channels: 2}
	got := samplesOf(Convert(pcmOf(0, 100), Speech, dst))
	want := []int16{0, 0, 50, 50, 100, 100, 100, 100}
	if len(got) != len(want) {
		t.Fatalf("samples = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConvert_InvalidFormatUnchanged(t *testing.T) {
	t.Parallel()
	in := pcmOf(1, 2)
	if got := Convert(in, Format{SampleRate: 0, Channels: 1}, Speech); len(got) != len(in) {
		t.Errorf("len = %d, want %d", len(got), len(in))
	}
}

func TestDrain(t *testing.T) {
	t.Parallel()
	ch := make(chan []byte, 3)
	ch <- []byte{1}
	ch <- []byte{2}
	close(ch)
	Drain(ch)
	if len(ch) != 0 {
		t.Errorf("channel still has %d items", len(ch))
	}
}
