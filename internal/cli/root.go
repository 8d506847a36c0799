// Package cli provides the command-line interface for sheetcast.
package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/sheetcast/internal/client"
	"github.com/raphaelgruber/sheetcast/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config and API client
	cfg       config.Config
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sheetcast",
	Short: "Turn piano recordings into sheet music",
	Long: `Sheetcast transcribes piano performances from a video page or audio URL
into MIDI, MusicXML and (when MuseScore is installed) PDF sheet music.

Jobs run on a sheetcast server; this CLI submits them and follows their progress.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		apiClient = client.New(cfg.ServerURL, cfg.ClientTimeout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $SHEETCAST_SERVER_URL or "+client.DefaultServerURL+")")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(pianoRollCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statsCmd)
}

// debugf prints to stderr when --verbose is set.
func debugf(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
