package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDebug   bool
	flagLogFile string
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "bartleby",
	Short: "MPE firmware engine for the Bartleby 25-key controller",
	Long: `bartleby is the input-to-MPE translation engine of the Bartleby
pressure-sensitive keyboard controller: dual-phase key detection, member
channel allocation, pot controllers and a serial transport shared between
MIDI and a line-based text protocol.

On a workstation the engine runs against a simulated sensor rig; the
serial side can be a real port so a connected synth hears the result.`,
}

// Execute runs the root command and exits with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging (adds source location)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file (rotated) instead of stderr")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a JSON config file")
}
