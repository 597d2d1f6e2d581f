package config

import (
	"errors"
	"fmt"
	"strings"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeLocal represents a provider location that is used as is.
	SourceTypeLocal SourceType = "local"

	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// Config holds the main configuration for the application.
type Config struct {
	Version   string          `json:"version"             yaml:"version"`
	Server    ServerConfig    `json:"server"              yaml:"server"`
	Storage   StorageConfig   `json:"storage,omitempty"   yaml:"storage,omitempty"`
	Audio     AudioConfig     `json:"audio"               yaml:"audio"`
	Embedding EmbeddingConfig `json:"embedding"           yaml:"embedding"`
	Inference InferenceConfig `json:"inference"           yaml:"inference"`
	Providers ProvidersConfig `json:"providers"           yaml:"providers"`
	Tracing   TracingConfig   `json:"tracing,omitempty"   yaml:"tracing,omitempty"`
}

// ServerConfig holds the network bind addresses.
type ServerConfig struct {
	HTTPAddr string `json:"http_addr"           yaml:"http_addr"`
	GRPCAddr string `json:"grpc_addr,omitempty" yaml:"grpc_addr,omitempty"`
}

// StorageConfig holds configuration for model downloads and scratch files.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
	TempDir   string `json:"temp_dir,omitempty"   yaml:"temp_dir,omitempty"`
}

// AudioConfig holds the fixed sample rate every utterance and waveform is converted to.
type AudioConfig struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`
}

// EmbeddingConfig holds the expected speaker embedding dimension.
// Encoders that report their own dimension take precedence.
type EmbeddingConfig struct {
	Dimension int `json:"dimension" yaml:"dimension"`
}

// InferenceConfig controls how blocking inference calls are scheduled.
type InferenceConfig struct {
	Workers int  `json:"workers" yaml:"workers"`
	Preload bool `json:"preload" yaml:"preload"`
}

// ProvidersConfig holds the three inference providers.
type ProvidersConfig struct {
	Encoder     ProviderConfig `json:"encoder"     yaml:"encoder"`
	Synthesizer ProviderConfig `json:"synthesizer" yaml:"synthesizer"`
	Vocoder     ProviderConfig `json:"vocoder"     yaml:"vocoder"`
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	Options  map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
	Source   SourceConfig   `json:"source,omitempty"  yaml:"source,omitempty"`
	Backend  string         `json:"backend"           yaml:"backend"`
	Location string         `json:"location"          yaml:"location"`
}

// TracingConfig selects the OpenTelemetry exporter.
type TracingConfig struct {
	Exporter     string  `json:"exporter,omitempty"      yaml:"exporter,omitempty"`
	OTLPEndpoint string  `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
	SamplingRate float64 `json:"sampling_rate,omitempty" yaml:"sampling_rate,omitempty"`
}

// SourceConfig wraps optional sources (at most one should be set).
// A provider without a source is local.
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a provider's model files.
type ModelSource interface {
	Type() SourceType
}

// LocalSource is a location already present on disk or reachable by URI.
type LocalSource struct{}

// Type returns the local source type.
func (LocalSource) Type() SourceType {
	return SourceTypeLocal
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// GetSource returns the active source for the provider.
func (p *ProviderConfig) GetSource() ModelSource {
	if p.Source.HuggingFace != nil {
		return *p.Source.HuggingFace
	}

	return LocalSource{}
}

// SetHuggingFaceSource sets the Hugging Face source.
func (p *ProviderConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	p.Source.HuggingFace = &source
}

// IsURI reports whether the location addresses a remote server rather than a path.
func (p *ProviderConfig) IsURI() bool {
	return strings.HasPrefix(p.Location, "http://") || strings.HasPrefix(p.Location, "https://")
}

// Validate checks the values the JSON schema cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Inference.Workers <= 0 {
		errs = append(errs, fmt.Errorf("inference.workers must be positive, got %d", c.Inference.Workers))
	}
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}

	for name, p := range map[string]ProviderConfig{
		"encoder":     c.Providers.Encoder,
		"synthesizer": c.Providers.Synthesizer,
		"vocoder":     c.Providers.Vocoder,
	} {
		if p.Location == "" {
			errs = append(errs, fmt.Errorf("providers.%s.location is required", name))
		}
		if p.Backend == "" {
			errs = append(errs, fmt.Errorf("providers.%s.backend is required", name))
		}
	}

	return errors.Join(errs...)
}
