package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAVE file around interleaved PCM16
// samples.
func buildWAV(t *testing.T, rate, channels int, samples []int16) []byte {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		if err := binary.Write(&data, binary.LittleEndian, s); err != nil {
			t.Fatalf("write sample: %v", err)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func TestDecode(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	a, err := Decode(bytes.NewReader(buildWAV(t, 16000, 1, samples)))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if a.SampleRate != 16000 || a.Channels != 1 {
		t.Fatalf("format = %d Hz x%d; want 16000 Hz x1", a.SampleRate, a.Channels)
	}
	if len(a.Samples) != len(samples)*2 {
		t.Fatalf("samples = %d bytes; want %d", len(a.Samples), len(samples)*2)
	}
	for i, want := range samples {
		if got := sampleAt(a.Samples, i); got != want {
			t.Fatalf("sample %d = %d; want %d", i, got, want)
		}
	}
}

func TestDecode_NotWAV(t *testing.T) {
	for _, input := range []string{"", "RIFF", "not audio at all, just text padding"} {
		if _, err := Decode(strings.NewReader(input)); !errors.Is(err, ErrNotWAV) {
			t.Fatalf("Decode(%q) error = %v; want ErrNotWAV", input, err)
		}
	}
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	file := buildWAV(t, 16000, 1, []int16{1, 2, 3})
	// Flip the audio format field to IEEE float.
	file[20] = 3
	_, err := Decode(bytes.NewReader(file))
	if err == nil || !strings.Contains(err.Error(), "unsupported encoding") {
		t.Fatalf("Decode error = %v; want unsupported encoding", err)
	}
}

func TestDecode_SkipsUnknownChunks(t *testing.T) {
	file := buildWAV(t, 16000, 1, []int16{7, 8, 9})
	// Splice a LIST chunk between fmt and data.
	var extra bytes.Buffer
	extra.WriteString("LIST")
	binary.Write(&extra, binary.LittleEndian, uint32(5))
	extra.WriteString("INFOx")
	extra.WriteByte(0) // pad to word boundary
	spliced := append(append([]byte{}, file[:36]...), extra.Bytes()...)
	spliced = append(spliced, file[36:]...)

	a, err := Decode(bytes.NewReader(spliced))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(a.Samples) != 6 || sampleAt(a.Samples, 0) != 7 {
		t.Fatalf("samples = %v; want the original data chunk", a.Samples)
	}
}

func TestDecode_TruncatedData(t *testing.T) {
	file := buildWAV(t, 16000, 1, []int16{1, 2, 3, 4})
	_, err := Decode(bytes.NewReader(file[:len(file)-4]))
	if err == nil || !strings.Contains(err.Error(), "data chunk") {
		t.Fatalf("Decode error = %v; want data chunk read failure", err)
	}
}

func TestMono16k_FirstChannel(t *testing.T) {
	// Stereo at the target rate: left channel counts up, right is noise.
	samples := []int16{10, -999, 20, -999, 30, -999}
	a, err := Decode(bytes.NewReader(buildWAV(t, 16000, 2, samples)))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	pcm, err := a.Mono16k()
	if err != nil {
		t.Fatalf("Mono16k error: %v", err)
	}
	if len(pcm) != 6 {
		t.Fatalf("pcm = %d bytes; want 6", len(pcm))
	}
	for i, want := range []int16{10, 20, 30} {
		if got := sampleAt(pcm, i); got != want {
			t.Fatalf("sample %d = %d; want %d", i, got, want)
		}
	}
}

func TestMono16k_Resamples(t *testing.T) {
	// One second of DC at 8 kHz should come out as roughly one second at
	// 16 kHz with the level preserved.
	samples := make([]int16, 8000)
	for i := range samples {
		samples[i] = 1000
	}
	a, err := Decode(bytes.NewReader(buildWAV(t, 8000, 1, samples)))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	pcm, err := a.Mono16k()
	if err != nil {
		t.Fatalf("Mono16k error: %v", err)
	}
	n := len(pcm) / 2
	if n < 14400 || n > 17600 {
		t.Fatalf("resampled to %d samples; want about 16000", n)
	}
	if mid := sampleAt(pcm, n/2); mid < 900 || mid > 1100 {
		t.Fatalf("mid sample = %d; want about 1000", mid)
	}
}

func TestDurationMS(t *testing.T) {
	if got := DurationMS(make([]byte, 32000)); got != 1000 {
		t.Fatalf("DurationMS(32000 bytes) = %d; want 1000", got)
	}
	if got := DurationMS(make([]byte, 3200)); got != 100 {
		t.Fatalf("DurationMS(3200 bytes) = %d; want 100", got)
	}
	if got := DurationMS(nil); got != 0 {
		t.Fatalf("DurationMS(nil) = %d; want 0", got)
	}
}
