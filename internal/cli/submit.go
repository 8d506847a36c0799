package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	submitIsolate bool
	submitWait    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Submit a recording for transcription",
	Long: `Submit a video page or audio file URL for transcription.

Examples:
  sheetcast submit https://www.youtube.com/watch?v=abc
  sheetcast submit --isolate --wait https://example.com/etude.mp3`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVar(&submitIsolate, "isolate", false, "isolate the piano before transcription")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "wait for the job to finish")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	job, err := apiClient.Submit(ctx, args[0], submitIsolate)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	debugf("submitted %s to %s", args[0], cfg.ServerURL)

	if !submitWait {
		fmt.Printf("Job %s submitted (%s)\n", job.ID, job.Status)
		fmt.Printf("Use 'sheetcast status %s --follow' to watch progress.\n", job.ID)
		return nil
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, job)
	}
	fmt.Printf("Job %s submitted\n", job.ID)
	return followStatus(ctx, job.ID)
}

// followStatus prints one line per status change from the websocket stream.
func followStatus(ctx context.Context, jobID string) error {
	var final service.StatusView
	err := apiClient.StreamStatus(ctx, jobID, func(v service.StatusView) error {
		final = v
		fmt.Printf("%3d%%  %-13s %s\n", v.Progress, v.Status, phaseLabels[v.Status])
		return nil
	})
	if err != nil {
		return fmt.Errorf("follow status: %w", err)
	}

	switch final.Status {
	case models.StatusFailed:
		return failure(final.Error)
	case models.StatusCompleted:
		if final.Result != nil {
			fmt.Print(formatResult(final.Result))
		}
	}
	return nil
}
