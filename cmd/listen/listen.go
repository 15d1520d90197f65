package listen

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beyproweb/beypro-notify/internal/conf"
	"github.com/beyproweb/beypro-notify/internal/daemon"
)

// Command creates the listen command, the daemon's main mode: connect to
// the backend event stream and play notification sounds until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen for business events and play notification sounds",
		Long:  "Connect to the backend event stream for the configured restaurant and play the configured notification sound for each incoming event.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx, settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the listen command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Backend.SocketURL, "socketurl", viper.GetString("backend.socketurl"), "Websocket endpoint (derived from baseurl when empty)")
	cmd.Flags().IntVar(&settings.Backend.ReconnectAttempts, "reconnectattempts", viper.GetInt("backend.reconnectattempts"), "Websocket dial attempts before falling back to polling")
	cmd.Flags().IntVar(&settings.Backend.ReconnectDelayMS, "reconnectdelay", viper.GetInt("backend.reconnectdelayms"), "Delay between dial attempts in milliseconds")
	cmd.Flags().StringVar(&settings.Output.DBPath, "dbpath", viper.GetString("output.dbpath"), "SQLite file for settings snapshots and sound history")
	cmd.Flags().StringVar(&settings.Output.Listen, "listen", viper.GetString("output.listen"), "Diagnostics HTTP listen address (empty to disable)")
	cmd.Flags().StringVar(&settings.Signals.IPCSocket, "ipcsocket", viper.GetString("signals.ipcsocket"), "Unix socket for local broadcast signals (empty to disable)")
	cmd.Flags().BoolVar(&settings.Signals.OSSignals, "ossignals", viper.GetBool("signals.ossignals"), "Map SIGUSR1/SIGUSR2 to foreground/background transitions")
	cmd.Flags().BoolVar(&settings.Sound.Disabled, "silent", viper.GetBool("sound.disabled"), "Run without opening an audio device")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
