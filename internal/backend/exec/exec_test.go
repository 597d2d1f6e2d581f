package exec

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/voxclone/internal/audio"
	"github.com/ekisa-team/voxclone/internal/backend"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	var body []byte
	if stdin != nil {
		body, _ = io.ReadAll(stdin)
	}
	a := m.Called(name, args, string(body))
	stdout, _ := a.Get(0).([]byte)
	stderr, _ := a.Get(1).([]byte)
	return stdout, stderr, a.Error(2)
}

func modelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.pt")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

func location(t *testing.T) backend.Location {
	return backend.Location{
		Path:    modelFile(t),
		Options: map[string]any{"bin": "/opt/voxprov", "args": []any{"--device", "cpu"}},
	}
}

func TestLoader_LoadEncoderQueriesDimension(t *testing.T) {
	runner := new(MockRunner)
	loc := location(t)

	runner.On("Run", "/opt/voxprov", []string{"info", "--model", loc.Path, "--device", "cpu"}, "{}").
		Return([]byte(`{"dimension":256}`), nil, nil).Once()
	runner.On("Run", "/opt/voxprov", []string{"embed", "--model", loc.Path, "--device", "cpu"}, `{"samples":[0.5,-0.5],"sample_rate":16000}`).
		Return([]byte(`{"embedding":[0.1,0.2]}`), nil, nil).Once()

	enc, err := NewLoaderWithRunner(runner).LoadEncoder(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, 256, enc.Dimension())

	emb, err := enc.Embed(context.Background(), audio.Utterance{Samples: []float32{0.5, -0.5}, SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, backend.Embedding{0.1, 0.2}, emb)
	assert.NoError(t, enc.Close())

	runner.AssertExpectations(t)
}

func TestLoader_SynthesizeAndVocode(t *testing.T) {
	runner := new(MockRunner)
	loc := location(t)

	req, err := json.Marshal(backend.SynthesizeRequest{Texts: []string{"hello"}, Embeddings: []backend.Embedding{{1, 2}}})
	require.NoError(t, err)

	runner.On("Run", "/opt/voxprov", []string{"synthesize", "--model", loc.Path, "--device", "cpu"}, string(req)).
		Return([]byte(`{"spectrograms":[[[0.1,0.2],[0.3,0.4]]]}`), nil, nil).Once()
	runner.On("Run", "/opt/voxprov", []string{"vocode", "--model", loc.Path, "--device", "cpu"}, `{"spectrogram":[[0.1,0.2],[0.3,0.4]]}`).
		Return([]byte(`{"samples":[0,0.25],"sample_rate":22050}`), nil, nil).Once()

	l := NewLoaderWithRunner(runner)
	syn, err := l.LoadSynthesizer(context.Background(), loc)
	require.NoError(t, err)
	voc, err := l.LoadVocoder(context.Background(), loc)
	require.NoError(t, err)

	specs, err := syn.Synthesize(context.Background(), []string{"hello"}, []backend.Embedding{{1, 2}})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, 2, specs[0].Frames())

	w, err := voc.Vocode(context.Background(), specs[0])
	require.NoError(t, err)
	assert.Equal(t, audio.Waveform{Samples: []float32{0, 0.25}, SampleRate: 22050}, w)

	runner.AssertExpectations(t)
}

func TestLoader_CommandFailureHidesStderr(t *testing.T) {
	runner := new(MockRunner)
	loc := location(t)

	runner.On("Run", "/opt/voxprov", mock.Anything, mock.Anything).
		Return(nil, []byte("Traceback: secret/internal/path.py"), errors.New("exit status 1")).Once()

	_, err := NewLoaderWithRunner(runner).LoadEncoder(context.Background(), loc)
	require.ErrorIs(t, err, backend.ErrProviderFailed)
	assert.NotContains(t, err.Error(), "Traceback")
}

func TestLoader_BadResponse(t *testing.T) {
	runner := new(MockRunner)
	loc := location(t)

	runner.On("Run", "/opt/voxprov", mock.Anything, mock.Anything).
		Return([]byte("not json"), nil, nil).Once()

	syn, err := NewLoaderWithRunner(runner).LoadSynthesizer(context.Background(), loc)
	require.NoError(t, err)

	_, err = syn.Synthesize(context.Background(), []string{"a"}, []backend.Embedding{{1}})
	assert.ErrorIs(t, err, backend.ErrBadResponse)
}

func TestLoader_EmptyEmbeddingIsRejected(t *testing.T) {
	runner := new(MockRunner)
	loc := location(t)

	runner.On("Run", "/opt/voxprov", mock.Anything, "{}").Return([]byte(`{"dimension":0}`), nil, nil).Once()
	runner.On("Run", "/opt/voxprov", mock.Anything, mock.Anything).Return([]byte(`{"embedding":[]}`), nil, nil).Once()

	enc, err := NewLoaderWithRunner(runner).LoadEncoder(context.Background(), loc)
	require.NoError(t, err)

	_, err = enc.Embed(context.Background(), audio.Utterance{Samples: []float32{0}, SampleRate: 16000, Channels: 1})
	assert.ErrorIs(t, err, backend.ErrBadResponse)
}

func TestLoader_LoadErrors(t *testing.T) {
	l := NewLoaderWithRunner(new(MockRunner))

	_, err := l.LoadVocoder(context.Background(), backend.Location{Path: modelFile(t)})
	assert.ErrorIs(t, err, ErrMissingBinary)

	_, err = l.LoadVocoder(context.Background(), backend.Location{
		Path:    filepath.Join(t.TempDir(), "missing.pt"),
		Options: map[string]any{"bin": "/opt/voxprov"},
	})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewLoader().LoadSynthesizer(context.Background(), backend.Location{
		Path:    modelFile(t),
		Options: map[string]any{"bin": filepath.Join(t.TempDir(), "no-binary")},
	})
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Equal(t, backend.BackendProviderExec, l.Provider())
}
