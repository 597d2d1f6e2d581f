package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var embedOutput string

var embedCmd = &cobra.Command{
	Use:   "embed <audio_file>",
	Short: "Extract a speaker embedding",
	Long: `Extract a speaker embedding from a WAV or FLAC file and print it as a
JSON array. The output can be passed to 'voxclone clone --embedding'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read audio file: %w", err)
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

		embedding, err := s.cloner.ExtractEmbedding(cmd.Context(), raw)
		if err != nil {
			return err
		}

		out, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		return writeOutput(cmd.OutOrStdout(), embedOutput, append(out, '\n'))
	},
}

func init() {
	embedCmd.Flags().StringVarP(&embedOutput, "output", "o", "", "output file (default: stdout)")
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
