package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var downloadOutput string

var downloadCmd = &cobra.Command{
	Use:   "download <job-id> <midi|musicxml|pdf>",
	Short: "Download an artifact of a finished job",
	Long: `Download an artifact of a finished job.

Examples:
  sheetcast download 3f2a... midi
  sheetcast download 3f2a... pdf -o nocturne.pdf`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"midi", "musicxml", "pdf"},
	RunE:      runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file (default: server-provided name)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	jobID, format := args[0], args[1]

	tmp, err := os.CreateTemp(".", ".sheetcast-download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	name, err := apiClient.Download(context.Background(), jobID, format, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return notFound(fmt.Errorf("download %s: %w", format, err), jobID)
	}

	out := downloadOutput
	if out == "" {
		out = filepath.Base(name)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	fmt.Printf("Saved %s\n", out)
	return nil
}
