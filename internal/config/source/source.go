// Package source resolves provider locations, downloading model files when the
// provider is backed by a remote repository.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ekisa-team/voxclone/internal/config"
	"github.com/ekisa-team/voxclone/internal/envvar"
	"github.com/ekisa-team/voxclone/internal/xfs"
)

// ErrUnknownSource is returned for source types without a downloader.
var ErrUnknownSource = errors.New("unknown model source")

// Downloader fetches a provider's model files into targetDir. It returns the
// directory holding the files, or "" when nothing had to be fetched, and
// whether a previous download was reused.
type Downloader interface {
	Download(ctx context.Context, provider *config.ProviderConfig, targetDir string) (string, bool, error)
}

// LocalDownloader is the no-op downloader for locations already on disk.
type LocalDownloader struct{}

// Download implements Downloader.
func (LocalDownloader) Download(context.Context, *config.ProviderConfig, string) (string, bool, error) {
	return "", true, nil
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, t config.SourceType) (Downloader, error) {
	switch t {
	case config.SourceTypeLocal:
		return LocalDownloader{}, nil
	case config.SourceTypeHuggingFace:
		return &HuggingFaceDownloader{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, t)
	}
}

// EnsureModelsDirectory creates the models directory if needed.
func EnsureModelsDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory %s: %w", path, err)
	}
	return nil
}

// ResolveModelsPath returns the path to the models directory.
// Precedence:
// 1. VOXCLONE_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func ResolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.VoxcloneModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}

// Resolver turns a provider configuration into the path or URI handed to a backend loader.
type Resolver struct {
	modelsDir string
}

// NewResolver creates a resolver that downloads into modelsDir.
func NewResolver(modelsDir string) *Resolver {
	return &Resolver{modelsDir: modelsDir}
}

// Resolve returns the concrete location for the provider. URIs pass through
// untouched; downloaded sources resolve the location inside the download directory.
func (r *Resolver) Resolve(ctx context.Context, provider config.ProviderConfig) (string, error) {
	if provider.IsURI() {
		return provider.Location, nil
	}

	downloader, err := GetDownloader(ctx, provider.GetSource().Type())
	if err != nil {
		return "", err
	}

	if provider.GetSource().Type() != config.SourceTypeLocal {
		if err := EnsureModelsDirectory(r.modelsDir); err != nil {
			return "", err
		}
	}

	dir, _, err := downloader.Download(ctx, &provider, r.modelsDir)
	if err != nil {
		return "", err
	}

	if dir == "" {
		return xfs.ExpandTilde(provider.Location), nil
	}

	return filepath.Join(dir, provider.Location), nil
}
