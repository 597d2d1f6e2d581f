package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ekisa-team/voxclone/internal/backend"
	"github.com/ekisa-team/voxclone/internal/backend/exec"
	"github.com/ekisa-team/voxclone/internal/backend/remote"
	"github.com/ekisa-team/voxclone/internal/config"
	"github.com/ekisa-team/voxclone/internal/config/source"
	"github.com/ekisa-team/voxclone/internal/env"
	"github.com/ekisa-team/voxclone/internal/logger"
	"github.com/ekisa-team/voxclone/internal/model"
	"github.com/ekisa-team/voxclone/internal/service"
)

var (
	cfgFile    string
	schemaFile string
	logFile    string
	logToFile  bool
)

var rootCmd = &cobra.Command{
	Use:   "voxclone",
	Short: "Voice cloning inference service",
	Long: `voxclone clones a speaker's voice from a short reference clip and
synthesizes new speech with it.

A speaker encoder turns the clip into an embedding, a synthesizer turns
text plus the embedding into mel spectrograms, and a vocoder turns the
spectrograms into audio. Each stage is served by a provider configured
in config.yaml.

Examples:
  # Run the API
  voxclone serve --config ./config.yaml

  # Extract an embedding
  voxclone embed reference.wav > embedding.json

  # Clone a voice offline
  voxclone clone reference.flac "Hello there" -o hello.wav
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		setupLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", path.Join(config.DefaultConfigPath(), "config.yaml"), "path to config file")
	rootCmd.PersistentFlags().StringVar(&schemaFile, "schema", "", "path to schema file (default: embedded schema)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "logs/voxclone.log", "path to the rotating log file")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "also write JSON logs to --log-file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogger() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	slog.SetDefault(logger.New(env.FromEnv(),
		logger.WithLogToFile(logToFile),
		logger.WithLogFile(logFile),
	))
}

// loadConfig reads --config, or falls back to defaults plus environment
// overrides when the file does not exist.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Config file not found, using defaults and environment", "config", cfgFile)
		return config.FromEnv()
	}

	cfg, err := config.LoadAndValidate(cfgFile, schemaFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// stack is the wired pipeline shared by every command.
type stack struct {
	loaders *backend.Registry
	models  *model.Registry
	cloner  *service.Cloner
}

func newStack(cfg *config.Config) (*stack, error) {
	modelsDir := source.ResolveModelsPath(cfg)
	if err := source.EnsureModelsDirectory(modelsDir); err != nil {
		return nil, err
	}

	loaders := backend.NewRegistry()
	for _, l := range []backend.Loader{
		exec.NewLoader(),
		remote.NewLoader(backend.NewServerManager()),
	} {
		if err := loaders.Register(l); err != nil {
			return nil, err
		}
	}

	models := model.NewRegistry(cfg.Providers, loaders, source.NewResolver(modelsDir))
	cloner := service.NewCloner(models, service.NewPool(cfg.Inference.Workers), service.Settings{
		SampleRate: cfg.Audio.SampleRate,
		Dimension:  cfg.Embedding.Dimension,
	})

	return &stack{loaders: loaders, models: models, cloner: cloner}, nil
}

// Close releases provider handles, then the loaders and their sidecar servers.
func (s *stack) Close() error {
	return errors.Join(s.models.Close(), s.loaders.Close())
}
