package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pianoRollJSON bool

var pianoRollCmd = &cobra.Command{
	Use:   "pianoroll <job-id>",
	Short: "Summarize the detected notes of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE:  runPianoRoll,
}

func init() {
	pianoRollCmd.Flags().BoolVar(&pianoRollJSON, "json", false, "print every note as JSON")
}

func runPianoRoll(cmd *cobra.Command, args []string) error {
	roll, err := apiClient.PianoRoll(context.Background(), args[0])
	if err != nil {
		return notFound(fmt.Errorf("get piano roll: %w", err), args[0])
	}

	if pianoRollJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(roll)
	}

	fmt.Printf("Notes:    %d\n", len(roll.Notes))
	fmt.Printf("Tempo:    %.0f BPM\n", roll.Tempo)
	fmt.Printf("Duration: %.2fs\n", roll.Duration)
	if len(roll.Notes) == 0 {
		return nil
	}

	lo, hi := roll.Notes[0].Pitch, roll.Notes[0].Pitch
	for _, n := range roll.Notes {
		lo, hi = min(lo, n.Pitch), max(hi, n.Pitch)
	}
	fmt.Printf("Range:    %s - %s\n", noteName(lo), noteName(hi))
	return nil
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// noteName renders a MIDI key in scientific pitch notation.
func noteName(key int) string {
	return fmt.Sprintf("%s%d", noteNames[key%12], key/12-1)
}
