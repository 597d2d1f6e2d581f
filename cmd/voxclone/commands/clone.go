package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/voxclone/internal/audio"
	"github.com/ekisa-team/voxclone/internal/codec"
	"github.com/ekisa-team/voxclone/internal/service"
)

var (
	cloneOutput    string
	cloneEmbedding string
)

var cloneCmd = &cobra.Command{
	Use:   "clone [audio_file] <text>",
	Short: "Synthesize text in a cloned voice",
	Long: `Clone the voice of a reference clip and synthesize text with it.

With --embedding the reference clip is replaced by an embedding previously
printed by 'voxclone embed', and the only argument is the text.

Examples:
  voxclone clone reference.wav "Hello there" -o hello.wav
  voxclone clone --embedding speaker.json "Hello again" -o again.wav
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cloneOutput == "" {
			return errors.New("output file is required, use -o")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newStack(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		var wave audio.Waveform
		switch {
		case cloneEmbedding != "" && len(args) == 1:
			raw, err := os.ReadFile(cloneEmbedding)
			if err != nil {
				return fmt.Errorf("failed to read embedding file: %w", err)
			}
			embedding, err := service.ParseEmbedding(string(raw))
			if err != nil {
				return err
			}
			wave, err = s.cloner.SynthesizeWithEmbedding(cmd.Context(), embedding, args[0])
			if err != nil {
				return err
			}
		case cloneEmbedding == "" && len(args) == 2:
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read audio file: %w", err)
			}
			wave, err = s.cloner.Clone(cmd.Context(), raw, args[1])
			if err != nil {
				return err
			}
		default:
			return errors.New("pass either <audio_file> <text> or --embedding <file> <text>")
		}

		data, err := codec.New(cfg.Audio.SampleRate, cfg.Storage.TempDir).EncodeSingle(wave)
		if err != nil {
			return err
		}
		if err := writeOutput(cmd.OutOrStdout(), cloneOutput, data); err != nil {
			return err
		}

		slog.Info("Wrote cloned audio", "output", cloneOutput, "duration", wave.Duration())
		return nil
	},
}

func init() {
	cloneCmd.Flags().StringVarP(&cloneOutput, "output", "o", "", "output WAV file")
	cloneCmd.Flags().StringVarP(&cloneEmbedding, "embedding", "e", "", "embedding JSON file to use instead of a reference clip")
}
