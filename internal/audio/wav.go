package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// EncodeWAV writes the waveform as 16-bit PCM mono WAV at rate. A waveform at a
// different rate is resampled first; a zero rate on the waveform means rate.
// The encoder needs a seekable sink, so the file is staged in tempDir
// ("" selects the OS default) and read back.
func EncodeWAV(w Waveform, rate int, tempDir string) ([]byte, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}

	samples := w.Samples
	if w.SampleRate != 0 && w.SampleRate != rate {
		var err error
		if samples, err = Resample(samples, w.SampleRate, rate); err != nil {
			return nil, err
		}
	}

	f, err := os.CreateTemp(tempDir, "voxclone-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, rate, wavBitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           toPCM16(samples),
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read wav: %w", err)
	}
	return data, nil
}

func toPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		out[i] = int(math.Round(v * math.MaxInt16))
	}
	return out
}
