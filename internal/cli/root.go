// Package cli implements the vrrd command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vrrd",
	Short: "vrrd - VRR panel control daemon",
	Long: `vrrd drives a variable-refresh-rate display panel between presents:
it keeps the panel rendering at the producer's cadence, inserts synthetic
keep-alive frames at low cadences, lets the panel hibernate when idle, and
aggregates present-interval statistics for power/perf telemetry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
