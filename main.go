package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/beyproweb/beypro-notify/cmd"
	"github.com/beyproweb/beypro-notify/internal/conf"
	"github.com/beyproweb/beypro-notify/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.Main.LogFile != "" {
		closer, err := logging.RedirectToFile(settings.Main.LogFile, level)
		if err != nil {
			logging.Warn("log file unavailable, logging to stdout",
				"path", settings.Main.LogFile, "error", err)
		} else {
			defer func() { _ = closer() }()
		}
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
