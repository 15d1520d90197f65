package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beyproweb/beypro-notify/cmd/listen"
	"github.com/beyproweb/beypro-notify/cmd/play"
	"github.com/beyproweb/beypro-notify/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beypro-notify",
		Short: "Beypro notification sound daemon",
		Long:  "Plays notification sounds for restaurant business events received from the Beypro backend.",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		// Flag wiring failing means the binary is unusable
		panic(err)
	}

	rootCmd.AddCommand(
		listen.Command(settings),
		play.Command(settings),
	)

	return rootCmd
}

// setupFlags configures the global flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.LogFile, "logfile", viper.GetString("main.logfile"), "Rotated JSON log file, empty to log to stdout")
	rootCmd.PersistentFlags().StringVar(&settings.Backend.BaseURL, "baseurl", viper.GetString("backend.baseurl"), "Backend REST base URL")
	rootCmd.PersistentFlags().StringVar(&settings.Backend.Token, "token", viper.GetString("backend.token"), "Backend bearer token")
	rootCmd.PersistentFlags().StringVar(&settings.Backend.RestaurantID, "restaurant", viper.GetString("backend.restaurantid"), "Restaurant (tenant) identity")
	rootCmd.PersistentFlags().StringVar(&settings.Sound.AssetsDir, "assets", viper.GetString("sound.assetsdir"), "Directory holding the bundled sound files")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
