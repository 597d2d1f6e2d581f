package backend

import (
	"context"

	"github.com/ekisa-team/voxclone/internal/audio"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	// BackendProviderExec runs a provider binary once per call, JSON over stdin/stdout.
	BackendProviderExec BackendProvider = "exec"

	// BackendProviderHTTP talks to a sidecar inference server.
	BackendProviderHTTP BackendProvider = "http"
)

// Embedding is a fixed-length speaker identity vector.
type Embedding []float32

// Clone returns a copy that does not alias e.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	return append(Embedding(nil), e...)
}

// Spectrogram is a time steps × feature bins representation bridging text and audio.
type Spectrogram [][]float32

// Frames returns the number of time steps.
func (s Spectrogram) Frames() int {
	return len(s)
}

// SpeakerEncoder maps an utterance to a speaker embedding.
type SpeakerEncoder interface {
	// Embed computes the embedding of a mono utterance at the service rate.
	Embed(ctx context.Context, u audio.Utterance) (Embedding, error)

	// Dimension returns the embedding length, or 0 when the provider does not report it.
	Dimension() int

	Close() error
}

// Synthesizer maps (text, embedding) pairs to spectrograms.
type Synthesizer interface {
	// Synthesize returns one spectrogram per pair, in input order.
	Synthesize(ctx context.Context, texts []string, embeddings []Embedding) ([]Spectrogram, error)

	Close() error
}

// Vocoder turns a spectrogram into a waveform.
type Vocoder interface {
	Vocode(ctx context.Context, s Spectrogram) (audio.Waveform, error)

	Close() error
}

// Location is a resolved provider location handed to a loader.
type Location struct {
	// Options contains backend-specific settings from the provider config.
	Options map[string]any

	// Path is a model path on disk or a server URI.
	Path string
}

// Loader constructs provider handles for one backend provider.
type Loader interface {
	Provider() BackendProvider

	LoadEncoder(ctx context.Context, loc Location) (SpeakerEncoder, error)
	LoadSynthesizer(ctx context.Context, loc Location) (Synthesizer, error)
	LoadVocoder(ctx context.Context, loc Location) (Vocoder, error)
}
