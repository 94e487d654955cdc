package cmd

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// initLogger configures the shared slog logger and calls slog.SetDefault
// so the stdlib log package also routes through the same handler. With a
// logfile set, output goes through a rotating writer.
func initLogger(debug bool, logfile string) {
	var w io.Writer = os.Stderr
	if logfile != "" {
		w = &lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
		}
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	slog.SetDefault(slog.New(h))
}
