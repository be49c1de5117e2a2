package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/lightseq/internal/app"
)

var runPattern string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover lights and serve patterns until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if runPattern != "" {
			cfg.Patterns.Autostart = runPattern
		}

		log.Info().Str("config", configPath).Msg("Starting lightseq")

		application, err := app.New(cfg)
		if err != nil {
			return err
		}

		if err := application.Start(cmd.Context()); err != nil {
			if stopErr := application.Stop(); stopErr != nil {
				log.Error().Err(stopErr).Msg("Error during shutdown")
			}
			return err
		}

		application.Wait()
		return application.Stop()
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPattern, "pattern", "p", "", "Pattern to start once lights are discovered (overrides patterns.autostart)")
}
