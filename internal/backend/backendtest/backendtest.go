// Package backendtest provides a deterministic in-process provider backend for tests.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/voxclone/internal/audio"
	"github.com/ekisa-team/voxclone/internal/backend"
)

// Provider is the identifier the fake registers under.
const Provider backend.BackendProvider = "fake"

// HopSize is the number of samples the fake vocoder emits per spectrogram frame.
const HopSize = 160

// ErrInjected marks failures configured on the fake.
var ErrInjected = errors.New("injected failure")

// Loader is a fake backend.Loader. Its zero value is not usable; use NewLoader.
type Loader struct {
	// LoadDelay stalls every load, to widen first-load races.
	LoadDelay time.Duration
	// VocoderRate is the rate the vocoder reports; 0 means the service rate.
	VocoderRate int
	// SpectrogramShortfall drops that many spectrograms from each synthesize result.
	SpectrogramShortfall int
	// EmbeddingShortfall drops that many values from each embedding while
	// Dimension keeps reporting the configured size.
	EmbeddingShortfall int

	loadErr map[string]error
	failOn  map[string]string

	loads     map[string]*atomic.Int32
	calls     map[string]*atomic.Int32
	dimension int
	mu        sync.Mutex
}

// NewLoader creates a fake whose encoder produces embeddings of dimension.
func NewLoader(dimension int) *Loader {
	l := &Loader{
		dimension: dimension,
		loadErr:   map[string]error{},
		failOn:    map[string]string{},
		loads:     map[string]*atomic.Int32{},
		calls:     map[string]*atomic.Int32{},
	}
	for _, role := range []string{"encoder", "synthesizer", "vocoder"} {
		l.loads[role] = &atomic.Int32{}
	}
	for _, op := range []string{"embed", "synthesize", "vocode"} {
		l.calls[op] = &atomic.Int32{}
	}
	return l
}

// FailLoad makes loading role ("encoder", "synthesizer" or "vocoder") fail.
// A nil err clears the failure.
func (l *Loader) FailLoad(role string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.loadErr, role)
		return
	}
	l.loadErr[role] = err
}

// FailOn makes op ("embed", "synthesize" or "vocode") fail. match restricts
// the failure: the text for synthesize, the decimal text length for vocode.
// "" fails every call.
func (l *Loader) FailOn(op, match string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failOn[op] = match
}

// Loads returns how many times role was loaded.
func (l *Loader) Loads(role string) int {
	return int(l.loads[role].Load())
}

// Calls returns how many times op was invoked.
func (l *Loader) Calls(op string) int {
	return int(l.calls[op].Load())
}

// Provider returns the fake identifier.
func (l *Loader) Provider() backend.BackendProvider {
	return Provider
}

func (l *Loader) load(ctx context.Context, role string) error {
	l.loads[role].Add(1)

	if l.LoadDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.LoadDelay):
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr[role]
}

func (l *Loader) failure(op, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	match, ok := l.failOn[op]
	if !ok || (match != "" && match != text) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInjected, op)
}

// LoadEncoder implements backend.Loader.
func (l *Loader) LoadEncoder(ctx context.Context, _ backend.Location) (backend.SpeakerEncoder, error) {
	if err := l.load(ctx, "encoder"); err != nil {
		return nil, err
	}
	return &encoder{l: l}, nil
}

// LoadSynthesizer implements backend.Loader.
func (l *Loader) LoadSynthesizer(ctx context.Context, _ backend.Location) (backend.Synthesizer, error) {
	if err := l.load(ctx, "synthesizer"); err != nil {
		return nil, err
	}
	return &synthesizer{l: l}, nil
}

// LoadVocoder implements backend.Loader.
func (l *Loader) LoadVocoder(ctx context.Context, _ backend.Location) (backend.Vocoder, error) {
	if err := l.load(ctx, "vocoder"); err != nil {
		return nil, err
	}
	return &vocoder{l: l}, nil
}

type encoder struct{ l *Loader }

// Embed fills the embedding with the mean absolute amplitude, offset per index.
func (e *encoder) Embed(_ context.Context, u audio.Utterance) (backend.Embedding, error) {
	e.l.calls["embed"].Add(1)
	if err := e.l.failure("embed", ""); err != nil {
		return nil, err
	}

	var level float32
	for _, s := range u.Samples {
		if s < 0 {
			s = -s
		}
		level += s
	}
	if len(u.Samples) > 0 {
		level /= float32(len(u.Samples))
	}

	emb := make(backend.Embedding, max(e.l.dimension-e.l.EmbeddingShortfall, 0))
	for i := range emb {
		emb[i] = level + float32(i)/1000
	}
	return emb, nil
}

func (e *encoder) Dimension() int { return e.l.dimension }

func (e *encoder) Close() error { return nil }

type synthesizer struct{ l *Loader }

// Synthesize emits len(text)+1 frames of 4 bins per text.
func (s *synthesizer) Synthesize(_ context.Context, texts []string, embeddings []backend.Embedding) ([]backend.Spectrogram, error) {
	s.l.calls["synthesize"].Add(1)
	if len(texts) != len(embeddings) {
		return nil, fmt.Errorf("got %d texts and %d embeddings", len(texts), len(embeddings))
	}

	out := make([]backend.Spectrogram, 0, len(texts))
	for i, text := range texts {
		if err := s.l.failure("synthesize", text); err != nil {
			return nil, err
		}

		var seed float32
		if len(embeddings[i]) > 0 {
			seed = embeddings[i][0]
		}

		spec := make(backend.Spectrogram, len(text)+1)
		for f := range spec {
			spec[f] = []float32{seed, float32(f), float32(len(text)), 0.5}
		}
		out = append(out, spec)
	}

	return out[:max(len(out)-s.l.SpectrogramShortfall, 0)], nil
}

func (s *synthesizer) Close() error { return nil }

type vocoder struct{ l *Loader }

// Vocode emits HopSize samples per frame of a quiet ramp.
func (v *vocoder) Vocode(_ context.Context, spec backend.Spectrogram) (audio.Waveform, error) {
	v.l.calls["vocode"].Add(1)

	text := ""
	if len(spec) > 0 && len(spec[0]) > 2 {
		text = fmt.Sprint(int(spec[0][2]))
	}
	if err := v.l.failure("vocode", text); err != nil {
		return audio.Waveform{}, err
	}

	samples := make([]float32, len(spec)*HopSize)
	for i := range samples {
		samples[i] = float32(i%HopSize) / (4 * HopSize)
	}
	return audio.Waveform{Samples: samples, SampleRate: v.l.VocoderRate}, nil
}

func (v *vocoder) Close() error { return nil }
