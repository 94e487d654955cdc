package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrivener-audio/bartleby/internal/config"
	"github.com/scrivener-audio/bartleby/internal/firmware"
	"github.com/scrivener-audio/bartleby/internal/hw"
)

var (
	runPort string
	runBaud int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine headless against a serial port",
	Long: `Run the translation engine against a real serial port with the
simulated sensor rig at rest. The MPE announcement is emitted at boot and
the ASCII control channel (hello, cc, reset) is live, which makes this
mode useful for exercising a host's protocol end.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPort, "port", "p", "/dev/ttyACM0", "serial port device")
	runCmd.Flags().IntVarP(&runBaud, "baud", "b", 31250, "serial baud rate")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	initLogger(flagDebug, flagLogFile)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	port, err := hw.OpenSerial(runPort, runBaud)
	if err != nil {
		return err
	}
	defer port.Close()

	rig := hw.NewSimRig()
	loop := firmware.New(cfg, rig, rig.Encoder, port, rig, firmware.RealClock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("bartleby starting", "port", runPort, "baud", runBaud, "debug", flagDebug)
	loop.Boot()
	loop.Run(ctx)
	slog.Info("bartleby stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
