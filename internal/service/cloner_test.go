package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/voxclone/internal/audio"
	"github.com/ekisa-team/voxclone/internal/backend"
	"github.com/ekisa-team/voxclone/internal/backend/backendtest"
	"github.com/ekisa-team/voxclone/internal/config"
	"github.com/ekisa-team/voxclone/internal/config/source"
	"github.com/ekisa-team/voxclone/internal/model"
)

const testRate = 16000

func newCloner(t *testing.T, dimension int) (*Cloner, *backendtest.Loader) {
	t.Helper()

	fake := backendtest.NewLoader(dimension)
	loaders := backend.NewRegistry()
	require.NoError(t, loaders.Register(fake))

	p := config.ProviderConfig{Backend: string(backendtest.Provider), Location: "model.pt"}
	registry := model.NewRegistry(config.ProvidersConfig{Encoder: p, Synthesizer: p, Vocoder: p}, loaders, source.NewResolver(t.TempDir()))

	return NewCloner(registry, NewPool(1), Settings{SampleRate: testRate, Dimension: 256}), fake
}

// referenceClip is a short tone encoded as WAV at rate.
func referenceClip(t *testing.T, rate int) []byte {
	t.Helper()

	w := audio.Waveform{Samples: make([]float32, rate/2), SampleRate: rate}
	for i := range w.Samples {
		w.Samples[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	data, err := audio.EncodeWAV(w, rate, t.TempDir())
	require.NoError(t, err)
	return data
}

func embedding(n int) backend.Embedding {
	e := make(backend.Embedding, n)
	for i := range e {
		e[i] = float32(i) / float32(n)
	}
	return e
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, err.Error())
	return e
}

func TestCloner_Clone(t *testing.T) {
	c, fake := newCloner(t, 256)

	w, err := c.Clone(context.Background(), referenceClip(t, testRate), "hello")
	require.NoError(t, err)

	assert.Equal(t, testRate, w.SampleRate)
	assert.Len(t, w.Samples, (len("hello")+1)*backendtest.HopSize)
	assert.Equal(t, 1, fake.Calls("embed"))
	assert.Equal(t, 1, fake.Calls("synthesize"))
	assert.Equal(t, 1, fake.Calls("vocode"))
}

func TestCloner_CloneAcceptsForeignRate(t *testing.T) {
	c, _ := newCloner(t, 256)

	w, err := c.Clone(context.Background(), referenceClip(t, 44100), "hi")
	require.NoError(t, err)
	assert.Equal(t, testRate, w.SampleRate)
}

func TestCloner_CloneResamplesVocoderOutput(t *testing.T) {
	c, fake := newCloner(t, 256)
	fake.VocoderRate = 22050

	w, err := c.Clone(context.Background(), referenceClip(t, testRate), "hello")
	require.NoError(t, err)

	n := (len("hello") + 1) * backendtest.HopSize
	assert.Equal(t, testRate, w.SampleRate)
	assert.Len(t, w.Samples, int(math.Round(float64(n)*testRate/22050)))
}

func TestCloner_CloneDecodeError(t *testing.T) {
	c, fake := newCloner(t, 256)

	_, err := c.Clone(context.Background(), []byte("this is not a wav file"), "hello")
	requireKind(t, err, KindDecode)
	assert.ErrorIs(t, err, audio.ErrDecode)
	assert.Zero(t, fake.Calls("embed"))
}

func TestCloner_CloneModelLoadErrorIsRetryable(t *testing.T) {
	c, fake := newCloner(t, 256)
	fake.FailLoad("vocoder", errors.New("no such file"))

	_, err := c.Clone(context.Background(), referenceClip(t, testRate), "hello")
	requireKind(t, err, KindModelLoad)
	assert.ErrorIs(t, err, model.ErrModelLoad)

	fake.FailLoad("vocoder", nil)
	_, err = c.Clone(context.Background(), referenceClip(t, testRate), "hello")
	assert.NoError(t, err)
}

func TestCloner_StageFailuresAreTagged(t *testing.T) {
	tests := []struct {
		op      string
		match   string
		stage   Stage
		message string
	}{
		{op: "embed", stage: StageEmbedding, message: "embedding extraction failed"},
		{op: "synthesize", match: "hello", stage: StageSynthesis, message: "synthesis failed"},
		{op: "vocode", stage: StageVocoding, message: "vocoding failed"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			c, fake := newCloner(t, 256)
			fake.FailOn(tt.op, tt.match)

			w, err := c.Clone(context.Background(), referenceClip(t, testRate), "hello")
			e := requireKind(t, err, KindStage)
			assert.Equal(t, tt.stage, e.Stage)
			assert.Contains(t, err.Error(), tt.message)
			assert.ErrorIs(t, err, backendtest.ErrInjected)
			assert.Empty(t, w.Samples)
		})
	}
}

func TestCloner_SpectrogramCountMismatch(t *testing.T) {
	c, fake := newCloner(t, 256)
	fake.SpectrogramShortfall = 1

	_, err := c.Clone(context.Background(), referenceClip(t, testRate), "hello")
	e := requireKind(t, err, KindStage)
	assert.Equal(t, StageSynthesis, e.Stage)
	assert.ErrorIs(t, err, ErrSpectrogramCount)
	assert.Zero(t, fake.Calls("vocode"))
}

func TestCloner_EncoderDimensionMismatch(t *testing.T) {
	c, fake := newCloner(t, 256)
	fake.EmbeddingShortfall = 3

	_, err := c.ExtractEmbedding(context.Background(), referenceClip(t, testRate))
	e := requireKind(t, err, KindStage)
	assert.Equal(t, StageEmbedding, e.Stage)
	assert.Contains(t, err.Error(), "253 values, want 256")

	_, err = c.Clone(context.Background(), referenceClip(t, testRate), "hello")
	e = requireKind(t, err, KindStage)
	assert.Equal(t, StageEmbedding, e.Stage)
	assert.Zero(t, fake.Calls("synthesize"))
}

func TestCloner_CloneRejectsEmptyText(t *testing.T) {
	c, fake := newCloner(t, 256)

	_, err := c.Clone(context.Background(), referenceClip(t, testRate), "   ")
	requireKind(t, err, KindInvalidRequest)
	assert.Zero(t, fake.Loads("encoder"))
}

func TestCloner_ExtractEmbedding(t *testing.T) {
	c, _ := newCloner(t, 256)

	emb, err := c.ExtractEmbedding(context.Background(), referenceClip(t, 44100))
	require.NoError(t, err)
	assert.Len(t, emb, 256)
}

func TestCloner_SynthesizeWithEmbedding(t *testing.T) {
	c, _ := newCloner(t, 256)

	w, err := c.SynthesizeWithEmbedding(context.Background(), embedding(256), "abc")
	require.NoError(t, err)
	assert.Len(t, w.Samples, 4*backendtest.HopSize)
}

func TestCloner_SynthesizeWithEmbeddingWrongDimension(t *testing.T) {
	c, fake := newCloner(t, 256)

	for _, n := range []int{0, 255, 257} {
		w, err := c.SynthesizeWithEmbedding(context.Background(), embedding(n), "abc")
		requireKind(t, err, KindInvalidEmbedding)
		assert.ErrorIs(t, err, ErrInvalidEmbedding)
		assert.Empty(t, w.Samples)
	}
	assert.Zero(t, fake.Calls("synthesize"))
}

func TestCloner_DimensionFallsBackToSettings(t *testing.T) {
	fake := backendtest.NewLoader(0)
	loaders := backend.NewRegistry()
	require.NoError(t, loaders.Register(fake))
	p := config.ProviderConfig{Backend: string(backendtest.Provider), Location: "model.pt"}
	registry := model.NewRegistry(config.ProvidersConfig{Encoder: p, Synthesizer: p, Vocoder: p}, loaders, source.NewResolver(t.TempDir()))

	c := NewCloner(registry, NewPool(2), Settings{SampleRate: testRate, Dimension: 4})

	_, err := c.SynthesizeWithEmbedding(context.Background(), embedding(4), "ok")
	require.NoError(t, err)

	_, err = c.SynthesizeWithEmbedding(context.Background(), embedding(3), "ok")
	requireKind(t, err, KindInvalidEmbedding)
}

func TestCloner_BatchSynthesizeLabelsInOrder(t *testing.T) {
	c, fake := newCloner(t, 256)
	texts := []string{"zzz", "a", "middle"}

	out, err := c.BatchSynthesize(context.Background(), embedding(256), texts)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for i, item := range out {
		assert.Equal(t, []string{"audio_1", "audio_2", "audio_3"}[i], item.Label)
		assert.Len(t, item.Waveform.Samples, (len(texts[i])+1)*backendtest.HopSize)
	}
	assert.Equal(t, 3, fake.Calls("synthesize"))
}

func TestCloner_BatchSynthesizeAbortsOnFirstFailure(t *testing.T) {
	c, fake := newCloner(t, 256)
	fake.FailOn("synthesize", "b")

	out, err := c.BatchSynthesize(context.Background(), embedding(256), []string{"a", "b", "c"})
	e := requireKind(t, err, KindStage)
	assert.Equal(t, 2, e.Item)
	assert.Equal(t, StageSynthesis, e.Stage)
	assert.Contains(t, err.Error(), "item 2: synthesis failed")
	assert.Nil(t, out)
	assert.Equal(t, 2, fake.Calls("synthesize"))
	assert.Equal(t, 1, fake.Calls("vocode"))
}

func TestCloner_BatchSynthesizeValidation(t *testing.T) {
	c, fake := newCloner(t, 256)

	_, err := c.BatchSynthesize(context.Background(), embedding(256), nil)
	requireKind(t, err, KindInvalidRequest)

	_, err = c.BatchSynthesize(context.Background(), embedding(256), []string{"a", ""})
	e := requireKind(t, err, KindInvalidRequest)
	assert.Equal(t, 2, e.Item)

	_, err = c.BatchSynthesize(context.Background(), embedding(10), []string{"a"})
	requireKind(t, err, KindInvalidEmbedding)
	assert.Zero(t, fake.Calls("synthesize"))
}

func TestCloner_CanceledWhileWaitingForSlot(t *testing.T) {
	c, _ := newCloner(t, 256)
	require.NoError(t, c.models.EnsureReady(context.Background()))

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = c.pool.Do(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SynthesizeWithEmbedding(ctx, embedding(256), "hello")
	requireKind(t, err, KindStage)
	assert.ErrorIs(t, err, context.Canceled)
}
