// Package wav decodes RIFF/WAVE uploads into the PCM the recognizer
// consumes: 16 kHz mono 16-bit little-endian.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	resampling "github.com/tphakala/go-audio-resampling"
)

// TargetRate is the sample rate the recognizer expects.
const TargetRate = 16000

// maxChunkBytes rejects RIFF chunks too large to be a plausible upload.
const maxChunkBytes = 256 << 20

// ErrNotWAV marks input that is not a RIFF/WAVE container at all.
var ErrNotWAV = errors.New("wav: not a RIFF/WAVE file")

// Audio is a decoded PCM16 clip.
type Audio struct {
	SampleRate int
	Channels   int

	// Samples is interleaved little-endian PCM16 as stored in the file.
	Samples []byte
}

// Decode parses a RIFF/WAVE stream. Only 16-bit integer PCM is accepted;
// unknown chunks are skipped.
func Decode(r io.Reader) (*Audio, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ErrNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		a       Audio
		haveFmt bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(ch[0:4])
		size := binary.LittleEndian.Uint32(ch[4:8])
		if size > maxChunkBytes {
			return nil, fmt.Errorf("wav: %q chunk too large: %d bytes", id, size)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short: %d bytes", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := int(binary.LittleEndian.Uint16(body[2:4]))
			rate := int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("wav: unsupported encoding (format=%d, bits=%d), want 16-bit PCM", format, bits)
			}
			if channels < 1 || rate < 1 {
				return nil, fmt.Errorf("wav: bad fmt chunk (channels=%d, rate=%d)", channels, rate)
			}
			a.Channels = channels
			a.SampleRate = rate
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("wav: data chunk before fmt chunk")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("wav: read data chunk: %w", err)
			}
			a.Samples = body
			return &a, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
		// Chunks are word aligned.
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				break
			}
		}
	}
	return nil, errors.New("wav: missing data chunk")
}

// Mono16k converts the clip to 16 kHz mono PCM16. Multi-channel audio
// keeps only the first channel.
func (a *Audio) Mono16k() ([]byte, error) {
	mono := a.firstChannel()
	if a.SampleRate == TargetRate {
		return mono, nil
	}
	return resample(mono, a.SampleRate, TargetRate)
}

func (a *Audio) firstChannel() []byte {
	if a.Channels == 1 {
		return a.Samples
	}
	frame := 2 * a.Channels
	n := len(a.Samples) / frame
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = a.Samples[i*frame]
		out[i*2+1] = a.Samples[i*frame+1]
	}
	return out
}

func resample(pcm []byte, from, to int) ([]byte, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("wav: create resampler: %w", err)
	}

	n := len(pcm) / 2
	input := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		input[i] = float64(s) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("wav: resample: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}

// DurationMS reports the play time, in milliseconds, of 16 kHz mono
// PCM16 audio.
func DurationMS(pcm []byte) int64 {
	return int64(len(pcm)) * 1000 / (TargetRate * 2)
}
