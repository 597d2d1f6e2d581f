// Package remote implements providers served by a sidecar HTTP inference
// server, either already running at a URI or launched through the
// backend.ServerManager.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/voxclone/internal/audio"
	"github.com/ekisa-team/voxclone/internal/backend"
	"github.com/ekisa-team/voxclone/internal/mapsafe"
)

const (
	defaultRequestTimeoutSeconds = 120
	defaultReadyTimeoutSeconds   = 60
	maxErrorBody                 = 4 << 10
)

// ErrMissingServer is returned when a path location carries no bin and port to launch.
var ErrMissingServer = errors.New("http provider requires a URI location or options.bin and options.port")

// Loader implements backend.Loader for sidecar servers.
type Loader struct {
	servers *backend.ServerManager
}

// NewLoader creates a loader that launches servers through sm.
func NewLoader(sm *backend.ServerManager) *Loader {
	return &Loader{servers: sm}
}

// Provider returns the backend identifier.
func (l *Loader) Provider() backend.BackendProvider {
	return backend.BackendProviderHTTP
}

// Close stops every server the loader launched.
func (l *Loader) Close() error {
	l.servers.StopAll()
	return nil
}

// LoadEncoder connects to the server and reads its embedding dimension.
func (l *Loader) LoadEncoder(ctx context.Context, loc backend.Location) (backend.SpeakerEncoder, error) {
	c, err := l.connect(ctx, loc)
	if err != nil {
		return nil, err
	}

	var info backend.InfoResponse
	if err := c.do(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return nil, err
	}

	return &encoder{client: c, dimension: info.Dimension}, nil
}

// LoadSynthesizer connects to the server.
func (l *Loader) LoadSynthesizer(ctx context.Context, loc backend.Location) (backend.Synthesizer, error) {
	c, err := l.connect(ctx, loc)
	if err != nil {
		return nil, err
	}
	return &synthesizer{client: c}, nil
}

// LoadVocoder connects to the server.
func (l *Loader) LoadVocoder(ctx context.Context, loc backend.Location) (backend.Vocoder, error) {
	c, err := l.connect(ctx, loc)
	if err != nil {
		return nil, err
	}
	return &vocoder{client: c}, nil
}

// connect returns a client for a reachable server, launching it first when
// the location is a model path.
func (l *Loader) connect(ctx context.Context, loc backend.Location) (*client, error) {
	c := &client{
		http: &http.Client{
			Timeout: time.Duration(mapsafe.Get(loc.Options, "timeout_seconds", defaultRequestTimeoutSeconds)) * time.Second,
		},
	}

	if IsURI(loc.Path) {
		c.baseURL = strings.TrimRight(loc.Path, "/")
		if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
			return nil, err
		}
		return c, nil
	}

	bin := mapsafe.Get(loc.Options, "bin", "")
	port := mapsafe.Get(loc.Options, "port", 0)
	if bin == "" || port <= 0 {
		return nil, ErrMissingServer
	}

	args := []string{"--model", loc.Path, "--host", "127.0.0.1", "--port", strconv.Itoa(port)}
	args = append(args, mapsafe.Strings(loc.Options, "args")...)

	baseURL, err := l.servers.StartServer(ctx, backend.ServerConfig{
		Name:         filepath.Base(bin),
		BinPath:      bin,
		Args:         args,
		Port:         port,
		ReadyTimeout: time.Duration(mapsafe.Get(loc.Options, "ready_timeout_seconds", defaultReadyTimeoutSeconds)) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	c.baseURL = baseURL
	return c, nil
}

// IsURI reports whether path addresses a server.
func IsURI(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

type client struct {
	http    *http.Client
	baseURL string
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", backend.ErrProviderFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Error("Provider server returned an error",
			"url", c.baseURL+path,
			"status", resp.StatusCode,
			"body", string(msg))
		return fmt.Errorf("%w: %s %s: status %d", backend.ErrProviderFailed, method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %w", backend.ErrBadResponse, path, err)
	}
	return nil
}

type encoder struct {
	client    *client
	dimension int
}

func (e *encoder) Embed(ctx context.Context, u audio.Utterance) (backend.Embedding, error) {
	var resp backend.EmbedResponse
	if err := e.client.do(ctx, http.MethodPost, "/embed", backend.EmbedRequest{Samples: u.Samples, SampleRate: u.SampleRate}, &resp); err != nil {
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
	if err := s.client.do(ctx, http.MethodPost, "/synthesize", backend.SynthesizeRequest{Texts: texts, Embeddings: embeddings}, &resp); err != nil {
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
	if err := v.client.do(ctx, http.MethodPost, "/vocode", backend.VocodeRequest{Spectrogram: spec}, &resp); err != nil {
		return audio.Waveform{}, err
	}
	return audio.Waveform{Samples: resp.Samples, SampleRate: resp.SampleRate}, nil
}

func (v *vocoder) Close() error { return nil }
