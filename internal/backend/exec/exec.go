// Package exec implements providers backed by a command-line binary. Each call
// runs "<bin> <op> --model <path> [args...]" with a JSON request on stdin and
// reads a JSON response from stdout.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ekisa-team/voxclone/internal/audio"
	"github.com/ekisa-team/voxclone/internal/backend"
	"github.com/ekisa-team/voxclone/internal/mapsafe"
)

// Operations understood by provider binaries.
const (
	opInfo       = "info"
	opEmbed      = "embed"
	opSynthesize = "synthesize"
	opVocode     = "vocode"
)

const defaultTimeoutSeconds = 120

// ErrMissingBinary is returned when the provider options carry no bin.
var ErrMissingBinary = errors.New("exec provider requires options.bin")

// Loader implements backend.Loader for exec providers.
type Loader struct {
	runner backend.CommandRunner
}

// NewLoader creates a loader that runs real processes.
func NewLoader() *Loader {
	return &Loader{}
}

// NewLoaderWithRunner creates a loader with a custom command runner.
func NewLoaderWithRunner(runner backend.CommandRunner) *Loader {
	return &Loader{runner: runner}
}

// Provider returns the backend identifier.
func (l *Loader) Provider() backend.BackendProvider {
	return backend.BackendProviderExec
}

// LoadEncoder checks the binary and model and asks the provider for its dimension.
func (l *Loader) LoadEncoder(ctx context.Context, loc backend.Location) (backend.SpeakerEncoder, error) {
	c, err := l.client(loc)
	if err != nil {
		return nil, err
	}

	var info backend.InfoResponse
	if err := c.call(ctx, opInfo, struct{}{}, &info); err != nil {
		return nil, err
	}

	return &encoder{client: c, dimension: info.Dimension}, nil
}

// LoadSynthesizer checks the binary and model.
func (l *Loader) LoadSynthesizer(_ context.Context, loc backend.Location) (backend.Synthesizer, error) {
	c, err := l.client(loc)
	if err != nil {
		return nil, err
	}
	return &synthesizer{client: c}, nil
}

// LoadVocoder checks the binary and model.
func (l *Loader) LoadVocoder(_ context.Context, loc backend.Location) (backend.Vocoder, error) {
	c, err := l.client(loc)
	if err != nil {
		return nil, err
	}
	return &vocoder{client: c}, nil
}

func (l *Loader) client(loc backend.Location) (*client, error) {
	bin := mapsafe.Get(loc.Options, "bin", "")
	if bin == "" {
		return nil, ErrMissingBinary
	}
	if _, err := os.Stat(loc.Path); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}

	timeout := time.Duration(mapsafe.Get(loc.Options, "timeout_seconds", defaultTimeoutSeconds)) * time.Second

	var executor *backend.Executor
	if l.runner != nil {
		executor = backend.NewExecutorWithRunner(bin, timeout, l.runner)
	} else {
		var err error
		if executor, err = backend.NewExecutor(bin, timeout); err != nil {
			return nil, err
		}
	}

	return &client{
		executor: executor,
		model:    loc.Path,
		args:     mapsafe.Strings(loc.Options, "args"),
	}, nil
}

// client runs one provider operation per process.
type client struct {
	executor *backend.Executor
	model    string
	args     []string
}

func (c *client) buildArgs(op string) []string {
	args := make([]string, 0, 3+len(c.args))
	args = append(args, op, "--model", c.model)
	return append(args, c.args...)
}

func (c *client) call(ctx context.Context, op string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	start := time.Now()
	stdout, stderr, err := c.executor.Execute(ctx, c.buildArgs(op), bytes.NewReader(payload))
	if err != nil {
		slog.Error("Provider command failed",
			"bin", c.executor.BinaryPath(),
			"op", op,
			"model", c.model,
			"error", err,
			"stderr", string(stderr))
		return fmt.Errorf("%w: %s: %w", backend.ErrProviderFailed, op, err)
	}

	slog.Debug("Provider command finished", "op", op, "model", c.model, "duration", time.Since(start))

	if err := json.Unmarshal(stdout, out); err != nil {
		return fmt.Errorf("%w: %s: %w", backend.ErrBadResponse, op, err)
	}
	return nil
}

type encoder struct {
	client    *client
	dimension int
}

func (e *encoder) Embed(ctx context.Context, u audio.Utterance) (backend.Embedding, error) {
	var resp backend.EmbedResponse
	if err := e.client.call(ctx, opEmbed, backend.EmbedRequest{Samples: u.Samples, SampleRate: u.SampleRate}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", backend.ErrBadResponse)
	}
	return resp.Embedding, nil
}

func (e *encoder) Dimension() int { return e.dimension }

func (e *encoder) Close() error { return nil }

type synthesizer struct {
	client *client
}

func (s *synthesizer) Synthesize(ctx context.Context, texts []string, embeddings []backend.Embedding) ([]backend.Spectrogram, error) {
	var resp backend.SynthesizeResponse
	if err := s.client.call(ctx, opSynthesize, backend.SynthesizeRequest{Texts: texts, Embeddings: embeddings}, &resp); err != nil {
		return nil, err
	}
	return resp.Spectrograms, nil
}

func (s *synthesizer) Close() error { return nil }

type vocoder struct {
	client *client
}

func (v *vocoder) Vocode(ctx context.Context, spec backend.Spectrogram) (audio.Waveform, error) {
	var resp backend.VocodeResponse
	if err := v.client.call(ctx, opVocode, backend.VocodeRequest{Spectrogram: spec}, &resp); err != nil {
		return audio.Waveform{}, err
	}
	return audio.Waveform{Samples: resp.Samples, SampleRate: resp.SampleRate}, nil
}

func (v *vocoder) Close() error { return nil }
