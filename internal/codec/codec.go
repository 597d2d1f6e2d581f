// Package codec serializes pipeline output for transport: a single WAV file or
// a zip archive of labeled WAV files.
package codec

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"

	"github.com/ekisa-team/voxclone/internal/audio"
)

// Content types returned by the codec.
const (
	ContentTypeWAV = "audio/wav"
	ContentTypeZip = "application/zip"
)

// Codec encodes waveforms at a fixed sample rate.
type Codec struct {
	tempDir    string
	sampleRate int
}

// New creates a codec for the given output rate. tempDir stages WAV files; ""
// uses the OS default.
func New(sampleRate int, tempDir string) *Codec {
	return &Codec{sampleRate: sampleRate, tempDir: tempDir}
}

// SampleRate returns the output rate.
func (c *Codec) SampleRate() int {
	return c.sampleRate
}

// EncodeSingle serializes one waveform as a WAV file.
func (c *Codec) EncodeSingle(w audio.Waveform) ([]byte, error) {
	return audio.EncodeWAV(w, c.sampleRate, c.tempDir)
}

// EncodeBatch serializes each waveform with EncodeSingle and bundles them in a
// zip archive. Entries are named <label>.wav and kept in input order.
func (c *Codec) EncodeBatch(items []audio.LabeledWaveform) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	now := time.Now()
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		name := item.Label + ".wav"
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate archive entry %q", name)
		}
		seen[name] = struct{}{}

		data, err := c.EncodeSingle(item.Waveform)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", item.Label, err)
		}

		// WAV does not compress well enough to be worth the latency.
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
