// Package http exposes the cloning pipeline over a huma REST API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/ekisa-team/voxclone/internal/codec"
	"github.com/ekisa-team/voxclone/internal/model"
	"github.com/ekisa-team/voxclone/internal/service"
	"github.com/ekisa-team/voxclone/internal/version"
)

const (
	shutdownTimeout = 10 * time.Second
	maxUploadBytes  = 50 << 20
)

// HealthReporter exposes model readiness.
type HealthReporter interface {
	IsReady() bool
	Status() []model.Instance
}

// Dependencies are the collaborators the handlers need.
type Dependencies struct {
	Cloner *service.Cloner
	Codec  *codec.Codec
	Models HealthReporter
}

// NewConfig returns the OpenAPI configuration of the service.
func NewConfig() huma.Config {
	cfg := huma.DefaultConfig("Voice Cloning API", version.Version)
	cfg.Info.Description = "Clone a speaker's voice from a short reference clip and synthesize new speech with it."
	return cfg
}

// Register registers every operation on api.
func Register(api huma.API, deps Dependencies) {
	NewHealthHandler(api, deps.Models)
	NewVoiceHandler(api, deps.Cloner, deps.Codec)
}

// NewHandler builds the HTTP handler: the huma API plus the root info endpoint.
func NewHandler(deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	cfg := NewConfig()
	api := humago.New(mux, cfg)
	Register(api, deps)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RootResponseDTO{
			Message: "Voice Cloning API Server",
			Version: version.Version,
			Docs:    cfg.DocsPath,
		})
	})

	return mux
}

// RootResponseDTO is the body of GET /.
type RootResponseDTO struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// Server is the HTTP server.
type Server struct {
	srv *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.srv.Shutdown(shutdownCtx)
}
