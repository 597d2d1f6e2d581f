package commands

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/voxclone/internal/codec"
	"github.com/ekisa-team/voxclone/internal/config"
	"github.com/ekisa-team/voxclone/internal/env"
	"github.com/ekisa-team/voxclone/internal/model"
	grpcserver "github.com/ekisa-team/voxclone/internal/server/grpc"
	httpserver "github.com/ekisa-team/voxclone/internal/server/http"
	"github.com/ekisa-team/voxclone/internal/trace"
	"github.com/ekisa-team/voxclone/internal/version"
)

const tracerShutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice cloning API",
	Long: `Run the HTTP API and, when server.grpc_addr is set, the gRPC health server.

Providers load on the first request, or at startup with inference.preload.
The config file is watched; provider changes apply to providers that are
not loaded yet.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	var models atomic.Pointer[model.Registry]

	cfg, closeWatcher, err := watchConfig(func(next *config.Config) {
		if m := models.Load(); m != nil {
			m.UpdateProviders(next.Providers)
		}
	})
	if err != nil {
		return err
	}
	defer closeWatcher()

	shutdownTracer, err := trace.Setup(ctx, trace.Config{
		ServiceName:    "voxclone",
		ServiceVersion: version.Version,
		Environment:    env.FromEnv().String(),
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("Failed to close providers", "error", err)
		}
	}()
	models.Store(s.models)

	if cfg.Inference.Preload {
		go func() {
			if err := s.models.EnsureReady(ctx); err != nil {
				slog.Error("Failed to preload models", "error", err)
			}
		}()
	}

	handler := httpserver.NewHandler(httpserver.Dependencies{
		Cloner: s.cloner,
		Codec:  codec.New(cfg.Audio.SampleRate, cfg.Storage.TempDir),
		Models: s.models,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	servers := 1
	errCh := make(chan error, 2)
	go func() {
		errCh <- httpserver.NewServer(cfg.Server.HTTPAddr, handler).Run(ctx)
	}()
	if cfg.Server.GRPCAddr != "" {
		servers++
		go func() {
			errCh <- grpcserver.NewServer(s.models).Run(ctx, cfg.Server.GRPCAddr)
		}()
	}

	slog.Info("voxclone started",
		"version", version.Version,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"sample_rate", cfg.Audio.SampleRate,
		"workers", cfg.Inference.Workers,
	)

	var errs []error
	for range servers {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
			cancel()
		}
	}

	slog.Info("voxclone stopped")
	return errors.Join(errs...)
}

// watchConfig loads the config file and watches it for changes. Without a
// file it falls back to defaults plus environment overrides and nothing is watched.
func watchConfig(onChange func(*config.Config)) (*config.Config, func(), error) {
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) {
		cfg, err := loadConfig()
		return cfg, func() {}, err
	}

	watcher, err := config.NewWatcher(cfgFile, schemaFile, func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("Failed to reload config", "error", err)
			return
		}
		onChange(cfg)
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("Config loaded successfully", "config", cfgFile, "schema", schemaFile)

	return watcher.Snapshot(), func() {
		if err := watcher.Close(); err != nil {
			slog.Error("Failed to close config watcher", "error", err)
		}
	}, nil
}
