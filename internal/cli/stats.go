package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server pipeline statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Printf("Uptime: %.0fs\n\n", s.UptimeSeconds)

	fmt.Printf("%-10s %7s %8s %10s %10s\n", "STAGE", "RUNS", "FAILED", "AVG (ms)", "MAX (ms)")
	fmt.Println("--------------------------------------------------")
	for _, st := range s.Stages {
		fmt.Printf("%-10s %7d %8d %10.0f %10d\n", st.Stage, st.Count, st.Failures, st.AvgTimeMs, st.MaxTimeMs)
	}

	if len(s.Outcomes) > 0 {
		fmt.Println("\nOutcomes:")
		keys := make([]string, 0, len(s.Outcomes))
		for k := range s.Outcomes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-10s %d\n", k, s.Outcomes[k])
		}
	}

	if len(s.Jobs) > 0 {
		fmt.Println("\nLive jobs:")
		for status, n := range s.Jobs {
			fmt.Printf("  %-13s %d\n", status, n)
		}
	}
	return nil
}
