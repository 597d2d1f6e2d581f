package audio

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

type ratePair struct {
	from, to int
}

// delays caches the measured filter delay per rate pair.
var delays sync.Map

// Resample converts mono samples from one rate to another with a high quality
// band-limited filter. Equal rates return the input untouched. The output has
// exactly round(len(samples) * to / from) samples and is aligned with the input:
// the filter delay is removed from the front and the tail is drained.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	delay, err := filterDelay(from, to)
	if err != nil {
		return nil, err
	}

	want := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))

	input := make([]float64, len(samples)+tailPadding(from))
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := process(from, to, input)
	if err != nil {
		return nil, err
	}

	out := make([]float32, want)
	for i := range out {
		if j := i + delay; j < len(output) {
			out[i] = float32(output[j])
		}
	}
	return out, nil
}

// tailPadding is the silence appended after the input, 100 ms at the input
// rate, so the samples held in the filter reach the output.
func tailPadding(from int) int {
	return max(from/10, 64)
}

// process runs input through a fresh resampler and flushes it.
func process(from, to int, input []float64) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	return append(output, tail...), nil
}

// filterDelay returns the delay, in output samples, between an input sample
// and its image in the output. GetLatency only estimates it for multi-stage
// pipelines, so it is measured from the peak of the impulse response, refined
// by parabolic interpolation and rounded.
func filterDelay(from, to int) (int, error) {
	key := ratePair{from: from, to: to}
	if d, ok := delays.Load(key); ok {
		return d.(int), nil
	}

	impulse := make([]float64, tailPadding(from))
	impulse[0] = 1

	resp, err := process(from, to, impulse)
	if err != nil {
		return 0, err
	}

	peak := 0
	for i, v := range resp {
		if math.Abs(v) > math.Abs(resp[peak]) {
			peak = i
		}
	}

	pos := float64(peak)
	if peak > 0 && peak < len(resp)-1 {
		a, b, c := resp[peak-1], resp[peak], resp[peak+1]
		if den := a - 2*b + c; den != 0 {
			if off := 0.5 * (a - c) / den; math.Abs(off) <= 1 {
				pos += off
			}
		}
	}

	delay := max(int(math.Round(pos)), 0)
	delays.Store(key, delay)
	return delay, nil
}
