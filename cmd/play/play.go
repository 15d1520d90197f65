package play

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beyproweb/beypro-notify/internal/audio"
	"github.com/beyproweb/beypro-notify/internal/conf"
	"github.com/beyproweb/beypro-notify/internal/soundsettings"
)

// Command creates the play command: resolve one bundled sound asset and
// play it once, for checking the local audio setup.
func Command(settings *conf.Settings) *cobra.Command {
	var volume float64
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "play <sound>",
		Short: "Play one bundled notification sound",
		Long:  "Resolve a sound asset identifier (e.g. chime, cash, new_order) and play it once at the given volume.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := audio.NewResolver(settings.Sound.AssetsDir)
			uri, err := resolver.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("resolving sound %q: %w", args[0], err)
			}

			engine, err := audio.NewMalgoEngine()
			if err != nil {
				return fmt.Errorf("initializing audio: %w", err)
			}
			defer engine.Close()

			handle, err := engine.Prepare(uri)
			if err != nil {
				return fmt.Errorf("preparing playback: %w", err)
			}
			defer handle.Release()

			handle.SetVolume(volume)
			if err := handle.Play(); err != nil {
				return fmt.Errorf("starting playback: %w", err)
			}

			// Playback is asynchronous, give the clip time to finish.
			time.Sleep(wait)
			return nil
		},
	}

	cmd.Flags().Float64Var(&volume, "volume", soundsettings.DefaultVolume, "Playback volume in [0,1]")
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "How long to wait for the clip to finish")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}
