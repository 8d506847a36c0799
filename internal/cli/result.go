package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var resultJSON bool

var resultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Show the full record of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runResult,
}

func init() {
	resultCmd.Flags().BoolVar(&resultJSON, "json", false, "print the raw JSON record")
}

func runResult(cmd *cobra.Command, args []string) error {
	job, err := apiClient.Result(context.Background(), args[0])
	if err != nil {
		return notFound(fmt.Errorf("get result: %w", err), args[0])
	}

	if resultJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	theme := defaultTheme
	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Source:      %s\n", job.Source)
	fmt.Printf("  Status:      %s\n", theme.statusStyle().Render(string(job.Status)))
	fmt.Printf("  Progress:    %d%%\n", job.Progress)
	fmt.Printf("  Created:     %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Finished:    %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != nil {
		fmt.Println(theme.errorStyle().Render("  Error:       " + *job.Error))
	}
	fmt.Print(formatResult(job))
	return nil
}
