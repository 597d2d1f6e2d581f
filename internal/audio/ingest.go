package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

type format int

const (
	formatUnknown format = iota
	formatWAV
	formatFLAC
)

// WAV fmt chunk audio format tags.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// detect sniffs the container from its magic bytes.
func detect(raw []byte) format {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return formatWAV
	case len(raw) >= 4 && string(raw[0:4]) == "fLaC":
		return formatFLAC
	default:
		return formatUnknown
	}
}

// Ingest decodes a WAV or FLAC payload and returns a mono utterance at targetRate.
// Multi-channel audio is averaged per frame; other rates go through the
// band-limited resampler.
func Ingest(raw []byte, targetRate int) (Utterance, error) {
	if targetRate <= 0 {
		return Utterance{}, fmt.Errorf("%w: %d", ErrInvalidRate, targetRate)
	}

	var (
		u   Utterance
		err error
	)
	switch detect(raw) {
	case formatWAV:
		u, err = decodeWAV(raw)
	case formatFLAC:
		u, err = decodeFLAC(raw)
	default:
		return Utterance{}, fmt.Errorf("%w: unrecognized container (%d bytes)", ErrDecode, len(raw))
	}
	if err != nil {
		return Utterance{}, err
	}

	if u.Channels <= 0 || u.SampleRate <= 0 {
		return Utterance{}, fmt.Errorf("%w: invalid stream header (channels=%d, rate=%d)", ErrDecode, u.Channels, u.SampleRate)
	}
	if len(u.Samples) < u.Channels {
		return Utterance{}, fmt.Errorf("%w: no samples", ErrDecode)
	}

	mono := Downmix(u.Samples, u.Channels)

	if u.SampleRate != targetRate {
		mono, err = Resample(mono, u.SampleRate, targetRate)
		if err != nil {
			return Utterance{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if len(mono) == 0 {
			return Utterance{}, fmt.Errorf("%w: no samples after resampling", ErrDecode)
		}
	}

	return Utterance{Samples: mono, SampleRate: targetRate, Channels: 1}, nil
}

// Downmix averages interleaved channels into a single channel.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func decodeWAV(raw []byte) (Utterance, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return Utterance{}, fmt.Errorf("%w: invalid wav file", ErrDecode)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Utterance{}, fmt.Errorf("%w: wav: %w", ErrDecode, err)
	}
	if buf == nil || buf.Format == nil {
		return Utterance{}, fmt.Errorf("%w: wav: missing format", ErrDecode)
	}

	samples, err := wavSamples(buf.Data, dec.WavAudioFormat, int(dec.BitDepth))
	if err != nil {
		return Utterance{}, err
	}

	return Utterance{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func decodeFLAC(raw []byte) (Utterance, error) {
	stream, err := flac.New(bytes.NewReader(raw))
	if err != nil {
		return Utterance{}, fmt.Errorf("%w: flac: %w", ErrDecode, err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := fullScale(int(stream.Info.BitsPerSample))

	var samples []float32
	if stream.Info.NSamples > 0 {
		samples = make([]float32, 0, int(stream.Info.NSamples)*channels)
	}

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Utterance{}, fmt.Errorf("%w: flac frame: %w", ErrDecode, err)
		}
		if len(frame.Subframes) != channels {
			return Utterance{}, fmt.Errorf("%w: flac frame has %d subframes, want %d", ErrDecode, len(frame.Subframes), channels)
		}

		n := len(frame.Subframes[0].Samples)
		for i := range n {
			for ch := range channels {
				samples = append(samples, float32(float64(frame.Subframes[ch].Samples[i])/scale))
			}
		}
	}

	return Utterance{
		Samples:    samples,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}

// wavSamples normalizes decoded WAV data to [-1, 1]. The decoder returns raw
// values: 8-bit PCM is unsigned and 32-bit float arrives as its bit pattern.
func wavSamples(data []int, format uint16, bitDepth int) ([]float32, error) {
	samples := make([]float32, len(data))

	switch format {
	case wavFormatPCM, wavFormatExtensible:
		scale := fullScale(bitDepth)
		offset := 0
		if bitDepth == 8 {
			offset = 128
		}
		for i, s := range data {
			samples[i] = float32(float64(s-offset) / scale)
		}
	case wavFormatFloat:
		if bitDepth != 32 {
			return nil, fmt.Errorf("%w: wav: unsupported %d-bit float", ErrDecode, bitDepth)
		}
		for i, s := range data {
			samples[i] = math.Float32frombits(uint32(int32(s)))
		}
	default:
		return nil, fmt.Errorf("%w: wav: unsupported audio format %d", ErrDecode, format)
	}

	return samples, nil
}

// fullScale is the magnitude of the most negative integer sample at the given bit depth.
func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float64(uint64(1) << (bitDepth - 1))
}
