package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sonoff-tools/ProvisionAgent/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "provision-agent",
	Short: "Provision unconfigured Sonoff devices onto an infrastructure network",
	Long: `provision-agent discovers unconfigured devices advertising a vendor
provisioning access point, associates with each one over a temporary
NetworkManager profile, and hands it the infrastructure network credentials
plus the management endpoint it should report to.`,
}

var rootVerbose bool

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if rootVerbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	}
	rootCmd.AddCommand(
		newRunCmd(),
		newScanCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("provision-agent command failed")
	}
}
