// Package service runs the voice cloning pipeline: ingest, encode, synthesize
// and vocode, on top of the lazily loaded providers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ekisa-team/voxclone/internal/audio"
	"github.com/ekisa-team/voxclone/internal/backend"
)

const tracerName = "github.com/ekisa-team/voxclone/internal/service"

// Models gives the pipeline access to loaded providers.
type Models interface {
	EnsureReady(ctx context.Context) error
	Encoder() (backend.SpeakerEncoder, error)
	Synthesizer() (backend.Synthesizer, error)
	Vocoder() (backend.Vocoder, error)
}

// Settings are the fixed pipeline parameters.
type Settings struct {
	// SampleRate is the rate of every utterance and waveform.
	SampleRate int
	// Dimension is the expected embedding length when the encoder does not report one.
	Dimension int
}

// Cloner orchestrates the cloning pipeline.
type Cloner struct {
	models   Models
	pool     *Pool
	tracer   trace.Tracer
	settings Settings
}

// NewCloner creates a Cloner.
func NewCloner(models Models, pool *Pool, settings Settings) *Cloner {
	return &Cloner{
		models:   models,
		pool:     pool,
		settings: settings,
		tracer:   otel.Tracer(tracerName),
	}
}

// SampleRate returns the pipeline output rate.
func (c *Cloner) SampleRate() int {
	return c.settings.SampleRate
}

// Clone synthesizes text in the voice of the reference audio.
func (c *Cloner) Clone(ctx context.Context, audioBytes []byte, text string) (audio.Waveform, error) {
	ctx, log, done := c.begin(ctx, "clone", attribute.Int("audio.bytes", len(audioBytes)))
	if err := validateText(text, 0); err != nil {
		return audio.Waveform{}, done(err)
	}

	if err := c.ensureReady(ctx); err != nil {
		return audio.Waveform{}, done(err)
	}

	u, err := c.ingest(ctx, audioBytes)
	if err != nil {
		return audio.Waveform{}, done(err)
	}

	emb, err := c.embed(ctx, u)
	if err != nil {
		return audio.Waveform{}, done(err)
	}

	w, err := c.synthesize(ctx, emb, text, 0)
	if err != nil {
		return audio.Waveform{}, done(err)
	}

	log.Info("Voice cloned", "text_len", len(text), "duration", w.Duration())
	return w, done(nil)
}

// ExtractEmbedding returns the speaker embedding of the reference audio.
func (c *Cloner) ExtractEmbedding(ctx context.Context, audioBytes []byte) (backend.Embedding, error) {
	ctx, log, done := c.begin(ctx, "extract_embedding", attribute.Int("audio.bytes", len(audioBytes)))

	if err := c.ensureReady(ctx); err != nil {
		return nil, done(err)
	}

	u, err := c.ingest(ctx, audioBytes)
	if err != nil {
		return nil, done(err)
	}

	emb, err := c.embed(ctx, u)
	if err != nil {
		return nil, done(err)
	}

	log.Info("Embedding extracted", "dimension", len(emb), "audio_duration", u.Duration())
	return emb, done(nil)
}

// SynthesizeWithEmbedding synthesizes text with a caller-supplied embedding.
// An embedding of the wrong dimension fails with KindInvalidEmbedding.
func (c *Cloner) SynthesizeWithEmbedding(ctx context.Context, embedding backend.Embedding, text string) (audio.Waveform, error) {
	ctx, log, done := c.begin(ctx, "synthesize_with_embedding")
	if err := validateText(text, 0); err != nil {
		return audio.Waveform{}, done(err)
	}

	if err := c.ensureReady(ctx); err != nil {
		return audio.Waveform{}, done(err)
	}

	emb := embedding.Clone()
	if err := checkDimension(emb, c.dimension()); err != nil {
		return audio.Waveform{}, done(err)
	}

	w, err := c.synthesize(ctx, emb, text, 0)
	if err != nil {
		return audio.Waveform{}, done(err)
	}

	log.Info("Speech synthesized", "text_len", len(text), "duration", w.Duration())
	return w, done(nil)
}

// BatchSynthesize synthesizes every text with one embedding, sequentially and
// in input order. Results are labeled audio_1, audio_2, ... The first failure
// aborts the batch; the error carries the 1-based item.
func (c *Cloner) BatchSynthesize(ctx context.Context, embedding backend.Embedding, texts []string) ([]audio.LabeledWaveform, error) {
	ctx, log, done := c.begin(ctx, "batch_synthesize", attribute.Int("batch.size", len(texts)))

	if len(texts) == 0 {
		return nil, done(invalidRequest("texts must not be empty"))
	}
	for i, text := range texts {
		if err := validateText(text, i+1); err != nil {
			return nil, done(err)
		}
	}

	if err := c.ensureReady(ctx); err != nil {
		return nil, done(err)
	}

	emb := embedding.Clone()
	if err := checkDimension(emb, c.dimension()); err != nil {
		return nil, done(err)
	}

	out := make([]audio.LabeledWaveform, 0, len(texts))
	for i, text := range texts {
		w, err := c.synthesize(ctx, emb, text, i+1)
		if err != nil {
			log.Error("Batch item failed, aborting batch", "item", i+1, "of", len(texts), "error", err)
			return nil, done(err)
		}

		label := fmt.Sprintf("audio_%d", i+1)
		out = append(out, audio.LabeledWaveform{Label: label, Waveform: w})
		log.Info("Batch item synthesized", "item", i+1, "of", len(texts), "label", label)
	}

	return out, done(nil)
}

// begin tags the request with an id and opens its root span. done ends the
// span, logs failures and returns err unchanged.
func (c *Cloner) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, *slog.Logger, func(error) error) {
	id := uuid.NewString()
	log := slog.With("request_id", id, "op", op)

	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(append(attrs, attribute.String("request.id", id))...))
	start := time.Now()

	return ctx, log, func(err error) error {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(KindOf(err)))
			log.Error("Request failed", "kind", KindOf(err), "error", err, "elapsed", time.Since(start))
			return err
		}
		log.Debug("Request finished", "elapsed", time.Since(start))
		return nil
	}
}

// span runs fn inside a child span, through the worker pool when pooled.
func (c *Cloner) span(ctx context.Context, name string, pooled bool, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	var err error
	if pooled {
		err = c.pool.Do(ctx, fn)
	} else {
		err = fn(ctx)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Cloner) ensureReady(ctx context.Context) error {
	if err := c.models.EnsureReady(ctx); err != nil {
		return &Error{Kind: KindModelLoad, Err: err}
	}
	return nil
}

func (c *Cloner) dimension() int {
	if enc, err := c.models.Encoder(); err == nil && enc.Dimension() > 0 {
		return enc.Dimension()
	}
	return c.settings.Dimension
}

func (c *Cloner) ingest(ctx context.Context, raw []byte) (audio.Utterance, error) {
	var u audio.Utterance
	err := c.span(ctx, "ingest", false, func(context.Context) error {
		var err error
		u, err = audio.Ingest(raw, c.settings.SampleRate)
		return err
	})
	if err != nil {
		return audio.Utterance{}, &Error{Kind: KindDecode, Err: err}
	}
	return u, nil
}

func (c *Cloner) embed(ctx context.Context, u audio.Utterance) (backend.Embedding, error) {
	enc, err := c.models.Encoder()
	if err != nil {
		return nil, &Error{Kind: KindModelLoad, Err: err}
	}

	var emb backend.Embedding
	err = c.span(ctx, "embed", true, func(ctx context.Context) error {
		var err error
		emb, err = enc.Embed(ctx, u)
		return err
	}, attribute.Int("audio.samples", len(u.Samples)))
	if err != nil {
		return nil, stageError(StageEmbedding, 0, err)
	}
	if want := enc.Dimension(); want > 0 && len(emb) != want {
		return nil, stageError(StageEmbedding, 0, fmt.Errorf("encoder returned %d values, want %d", len(emb), want))
	}

	return emb, nil
}

// synthesize runs synthesis and vocoding for one text.
func (c *Cloner) synthesize(ctx context.Context, emb backend.Embedding, text string, item int) (audio.Waveform, error) {
	syn, err := c.models.Synthesizer()
	if err != nil {
		return audio.Waveform{}, &Error{Kind: KindModelLoad, Item: item, Err: err}
	}
	voc, err := c.models.Vocoder()
	if err != nil {
		return audio.Waveform{}, &Error{Kind: KindModelLoad, Item: item, Err: err}
	}

	var specs []backend.Spectrogram
	err = c.span(ctx, "synthesize", true, func(ctx context.Context) error {
		var err error
		specs, err = syn.Synthesize(ctx, []string{text}, []backend.Embedding{emb})
		return err
	}, attribute.Int("text.len", len(text)), attribute.Int("batch.item", item))
	if err != nil {
		return audio.Waveform{}, stageError(StageSynthesis, item, err)
	}
	if len(specs) != 1 {
		return audio.Waveform{}, stageError(StageSynthesis, item, fmt.Errorf("%w: got %d, want 1", ErrSpectrogramCount, len(specs)))
	}

	var w audio.Waveform
	err = c.span(ctx, "vocode", true, func(ctx context.Context) error {
		var err error
		w, err = voc.Vocode(ctx, specs[0])
		return err
	}, attribute.Int("spectrogram.frames", specs[0].Frames()), attribute.Int("batch.item", item))
	if err != nil {
		return audio.Waveform{}, stageError(StageVocoding, item, err)
	}

	return c.normalize(w, item)
}

// normalize brings vocoder output to the pipeline rate.
func (c *Cloner) normalize(w audio.Waveform, item int) (audio.Waveform, error) {
	if len(w.Samples) == 0 {
		return audio.Waveform{}, stageError(StageVocoding, item, ErrEmptyWaveform)
	}

	if w.SampleRate == 0 || w.SampleRate == c.settings.SampleRate {
		return audio.Waveform{Samples: w.Samples, SampleRate: c.settings.SampleRate}, nil
	}

	samples, err := audio.Resample(w.Samples, w.SampleRate, c.settings.SampleRate)
	if err != nil {
		return audio.Waveform{}, stageError(StageVocoding, item, err)
	}
	return audio.Waveform{Samples: samples, SampleRate: c.settings.SampleRate}, nil
}

func validateText(text string, item int) error {
	if strings.TrimSpace(text) != "" {
		return nil
	}
	if item > 0 {
		e := invalidRequest("text must not be empty")
		e.Item = item
		return e
	}
	return invalidRequest("text must not be empty")
}
