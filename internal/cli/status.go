package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/sheetcast/internal/client"
	"github.com/spf13/cobra"
)

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the progress of a job",
	Long: `Show the current status and progress of a job.

Examples:
  sheetcast status 3f2a...          # One-shot status
  sheetcast status 3f2a... --follow # Stream updates until the job finishes`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "stream updates until the job finishes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jobID := args[0]

	if statusFollow {
		return notFound(followStatus(ctx, jobID), jobID)
	}

	v, err := apiClient.Status(ctx, jobID)
	if err != nil {
		return notFound(fmt.Errorf("get status: %w", err), jobID)
	}

	fmt.Printf("Job: %s\n", v.JobID)
	fmt.Printf("  Status:   %s\n", v.Status)
	fmt.Printf("  Progress: %d%%\n", v.Progress)
	if v.Error != "" {
		fmt.Printf("  Error:    %s\n", v.Error)
	}
	if v.Result != nil {
		fmt.Print(formatResult(v.Result))
	}
	return nil
}

// notFound replaces a 404 with a friendlier message.
func notFound(err error, jobID string) error {
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("job not found: %s (jobs expire 24h after their last update)", jobID)
	}
	return err
}
