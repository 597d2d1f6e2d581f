package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/voxclone/internal/backend"
	"github.com/ekisa-team/voxclone/internal/config"
)

// Resolver turns a provider configuration into the path or URI a loader receives.
type Resolver interface {
	Resolve(ctx context.Context, provider config.ProviderConfig) (string, error)
}

// Registry owns the three provider handles and loads them lazily, at most once
// each. Concurrent first loads are serialized by loadMu; ready checks only read
// an atomic flag.
type Registry struct {
	loaders  *backend.Registry
	resolver Resolver

	providers map[Role]config.ProviderConfig
	instances map[Role]*Instance

	encoder     backend.SpeakerEncoder
	synthesizer backend.Synthesizer
	vocoder     backend.Vocoder

	ready  atomic.Bool
	loadMu sync.Mutex
	mu     sync.RWMutex
}

// NewRegistry creates a registry with every provider unloaded.
func NewRegistry(providers config.ProvidersConfig, loaders *backend.Registry, resolver Resolver) *Registry {
	r := &Registry{
		loaders:   loaders,
		resolver:  resolver,
		providers: providerMap(providers),
		instances: make(map[Role]*Instance, len(Roles)),
	}

	for _, role := range Roles {
		p := r.providers[role]
		r.instances[role] = &Instance{
			Role:     role,
			Backend:  p.Backend,
			Location: p.Location,
			Status:   ModelStatusUnloaded,
		}
	}

	return r
}

func providerMap(p config.ProvidersConfig) map[Role]config.ProviderConfig {
	return map[Role]config.ProviderConfig{
		RoleEncoder:     p.Encoder,
		RoleSynthesizer: p.Synthesizer,
		RoleVocoder:     p.Vocoder,
	}
}

// IsReady reports whether all three providers are loaded.
func (r *Registry) IsReady() bool {
	return r.ready.Load()
}

// EnsureReady loads every provider that is not loaded yet, in role order. It
// is idempotent and safe for concurrent use. A failure wraps ErrModelLoad and
// leaves the failed provider retryable; providers loaded before it stay loaded.
func (r *Registry) EnsureReady(ctx context.Context) error {
	if r.ready.Load() {
		return nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if r.ready.Load() {
		return nil
	}

	start := time.Now()
	for _, role := range Roles {
		if r.status(role) == ModelStatusLoaded {
			continue
		}
		if err := r.load(ctx, role); err != nil {
			return err
		}
	}

	r.ready.Store(true)
	slog.Info("Models ready", "duration", time.Since(start))
	return nil
}

func (r *Registry) status(role Role) ModelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.instances[role].Status
}

func (r *Registry) load(ctx context.Context, role Role) error {
	r.mu.Lock()
	provider := r.providers[role]
	inst := r.instances[role]
	inst.Backend, inst.Location = provider.Backend, provider.Location
	inst.SetStatus(ModelStatusLoading)
	r.mu.Unlock()

	slog.Info("Loading provider", "role", role, "backend", provider.Backend, "location", provider.Location)
	start := time.Now()

	err := r.open(ctx, role, provider)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		inst.SetError(err)
		slog.Error("Failed to load provider", "role", role, "backend", provider.Backend, "location", provider.Location, "error", err)
		return fmt.Errorf("%w: %s provider: %w", ErrModelLoad, role, err)
	}

	inst.SetStatus(ModelStatusLoaded)
	slog.Info("Provider loaded", "role", role, "backend", provider.Backend, "duration", time.Since(start))
	return nil
}

// open resolves and loads one provider and stores its handle.
func (r *Registry) open(ctx context.Context, role Role, provider config.ProviderConfig) error {
	loader, err := r.loaders.Get(backend.BackendProvider(provider.Backend))
	if err != nil {
		return err
	}

	path, err := r.resolver.Resolve(ctx, provider)
	if err != nil {
		return fmt.Errorf("failed to resolve location: %w", err)
	}
	loc := backend.Location{Path: path, Options: provider.Options}

	switch role {
	case RoleEncoder:
		h, err := loader.LoadEncoder(ctx, loc)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.encoder = h
		r.mu.Unlock()
	case RoleSynthesizer:
		h, err := loader.LoadSynthesizer(ctx, loc)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.synthesizer = h
		r.mu.Unlock()
	case RoleVocoder:
		h, err := loader.LoadVocoder(ctx, loc)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.vocoder = h
		r.mu.Unlock()
	default:
		return fmt.Errorf("unknown provider role %q", role)
	}

	return nil
}

// Encoder returns the speaker encoder, or ErrNotReady before it is loaded.
func (r *Registry) Encoder() (backend.SpeakerEncoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.encoder == nil {
		return nil, ErrNotReady
	}
	return r.encoder, nil
}

// Synthesizer returns the synthesizer, or ErrNotReady before it is loaded.
func (r *Registry) Synthesizer() (backend.Synthesizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.synthesizer == nil {
		return nil, ErrNotReady
	}
	return r.synthesizer, nil
}

// Vocoder returns the vocoder, or ErrNotReady before it is loaded.
func (r *Registry) Vocoder() (backend.Vocoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.vocoder == nil {
		return nil, ErrNotReady
	}
	return r.vocoder, nil
}

// Status returns a snapshot of every provider in role order.
func (r *Registry) Status() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Instance, 0, len(Roles))
	for _, role := range Roles {
		out = append(out, *r.instances[role])
	}
	return out
}

// UpdateProviders replaces the configuration of providers that are not loaded
// yet. Loaded providers keep running with the configuration they were loaded with.
func (r *Registry) UpdateProviders(p config.ProvidersConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for role, next := range providerMap(p) {
		if reflect.DeepEqual(r.providers[role], next) {
			continue
		}

		inst := r.instances[role]
		if inst.Status == ModelStatusLoaded || inst.Status == ModelStatusLoading {
			slog.Warn("Provider config changed while loaded, restart to apply", "role", role)
			continue
		}

		r.providers[role] = next
		inst.Backend, inst.Location = next.Backend, next.Location
		slog.Info("Provider config updated", "role", role, "backend", next.Backend, "location", next.Location)
	}
}

// Close closes every loaded provider handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.encoder != nil {
		errs = append(errs, r.encoder.Close())
	}
	if r.synthesizer != nil {
		errs = append(errs, r.synthesizer.Close())
	}
	if r.vocoder != nil {
		errs = append(errs, r.vocoder.Close())
	}

	return errors.Join(errs...)
}
