package cmd

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/scrivener-audio/bartleby/internal/firmware"
	"github.com/scrivener-audio/bartleby/internal/hw"
	"github.com/scrivener-audio/bartleby/internal/tui"
)

var (
	simPort     string
	simBaud     int
	simGreeting bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play the virtual keybed from the terminal",
	Long: `Run the full engine against a simulated sensor rig with a live
monitor: the computer keyboard strikes keys, arrow keys turn pots, and the
decoded MIDI stream is displayed as it is produced.

With --port the same byte stream is also forwarded to a real serial port,
so a connected synth plays what the monitor shows.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simPort, "port", "p", "", "forward the TX stream to this serial port")
	simulateCmd.Flags().IntVarP(&simBaud, "baud", "b", 31250, "serial baud rate")
	simulateCmd.Flags().BoolVar(&simGreeting, "greeting", false, "play the boot chime")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	// The TUI owns the terminal; keep logs out of it unless redirected.
	if flagLogFile != "" || flagDebug {
		initLogger(flagDebug, flagLogFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Greeting = simGreeting

	var forward tui.Forwarder
	if simPort != "" {
		sp, err := hw.OpenSerial(simPort, simBaud)
		if err != nil {
			return err
		}
		defer sp.Close()
		forward = sp
	}

	rig := hw.NewSimRig()
	port := hw.NewSimPort()
	loop := firmware.New(cfg, rig, rig.Encoder, port, rig, firmware.RealClock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Boot()
	go loop.Run(ctx)

	m := tui.NewModel(rig, port, forward)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	slog.Info("simulate: stopped")
	return nil
}
