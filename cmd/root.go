package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vantagesec/sentinel-go/cmd/fetch"
	"github.com/vantagesec/sentinel-go/cmd/support"
	"github.com/vantagesec/sentinel-go/cmd/watch"
	"github.com/vantagesec/sentinel-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Sentinel-Go CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	// Add sub-commands to the root command.
	watchCmd := watch.Command(settings)
	fetchCmd := fetch.Command(settings)
	supportCmd := support.Command(settings)

	subcommands := []*cobra.Command{
		watchCmd,
		fetchCmd,
		supportCmd,
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Sync.PushURL, "push-url", viper.GetString("sync.pushurl"), "Websocket URL of the remote push endpoint")
	rootCmd.PersistentFlags().StringVar(&settings.Sync.PollURL, "poll-url", viper.GetString("sync.pollurl"), "HTTP URL of the remote status endpoint")
	rootCmd.PersistentFlags().DurationVar(&settings.Sync.PollInterval, "poll-interval", viper.GetDuration("sync.pollinterval"), "Interval between polls in fallback mode")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
