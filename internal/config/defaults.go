package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ekisa-team/voxclone/internal/envvar"
)

const (
	// DefaultSampleRate is the rate utterances are resampled to and waveforms are encoded at.
	DefaultSampleRate = 16000

	// DefaultEmbeddingDimension is the speaker embedding size of the reference encoder.
	DefaultEmbeddingDimension = 256

	// DefaultHTTPAddr is the HTTP bind address.
	DefaultHTTPAddr = "0.0.0.0:8000"
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			HTTPAddr: DefaultHTTPAddr,
		},
		Audio:     AudioConfig{SampleRate: DefaultSampleRate},
		Embedding: EmbeddingConfig{Dimension: DefaultEmbeddingDimension},
		Inference: InferenceConfig{Workers: 1},
		Providers: ProvidersConfig{
			Encoder:     ProviderConfig{Backend: "exec", Location: "models/encoder/encoder.pt"},
			Synthesizer: ProviderConfig{Backend: "exec", Location: "models/synthesizer/synthesizer.pt"},
			Vocoder:     ProviderConfig{Backend: "exec", Location: "models/vocoder/vocoder.pt"},
		},
		Tracing: TracingConfig{Exporter: "none", SamplingRate: 1},
	}
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(envvar.VoxcloneHTTPAddr); v != "" {
		c.Server.HTTPAddr = v
	} else if host, port := os.Getenv(envvar.APIHost), os.Getenv(envvar.APIPort); host != "" || port != "" {
		h, p, err := net.SplitHostPort(c.Server.HTTPAddr)
		if err != nil {
			h, p = "0.0.0.0", "8000"
		}
		if host != "" {
			h = host
		}
		if port != "" {
			p = port
		}
		c.Server.HTTPAddr = net.JoinHostPort(h, p)
	}

	if v := os.Getenv(envvar.VoxcloneGRPCAddr); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv(envvar.VoxcloneModelsPath); v != "" {
		c.Storage.ModelsDir = v
	}
	if v := os.Getenv(envvar.VoxcloneTraceExporter); v != "" {
		c.Tracing.Exporter = v
	}
	if v := os.Getenv(envvar.ModelEncoderPath); v != "" {
		c.Providers.Encoder.Location = v
	}
	if v := os.Getenv(envvar.ModelSynthesizerPath); v != "" {
		c.Providers.Synthesizer.Location = v
	}
	if v := os.Getenv(envvar.ModelVocoderPath); v != "" {
		c.Providers.Vocoder.Location = v
	}
}

// DefaultConfigPath returns the default path for the voxclone config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "voxclone", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "voxclone")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "voxclone")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "voxclone")
		}
		return filepath.Join(home, ".config", "voxclone")
	}
}

// DefaultModelsPath returns the default path for the voxclone models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "voxclone", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "voxclone", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "voxclone", "models")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "voxclone", "models")
		}
		return filepath.Join(home, ".cache", "voxclone", "models")
	}
}
