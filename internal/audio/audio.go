// Package audio turns uploaded audio payloads into normalized utterances and
// serializes synthesized waveforms back to WAV.
package audio

import "time"

// Utterance is decoded reference audio. After Ingest it is mono at the target
// rate and never empty.
type Utterance struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the utterance.
func (u Utterance) Duration() time.Duration {
	return duration(len(u.Samples)/max(u.Channels, 1), u.SampleRate)
}

// Waveform is mono synthesized audio.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the waveform.
func (w Waveform) Duration() time.Duration {
	return duration(len(w.Samples), w.SampleRate)
}

// LabeledWaveform is one entry of a batch result.
type LabeledWaveform struct {
	Label    string
	Waveform Waveform
}

func duration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
