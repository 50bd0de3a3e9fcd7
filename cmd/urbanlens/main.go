package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"urbanlens/internal/config"
	"urbanlens/internal/env"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "urbanlens",
	Short: "Site summaries for French addresses",
	Long: "Geocodes an address and gathers its cadastral parcel, PLU zoning zone with the regulation PDF, " +
		"and street-level imagery from Mapillary or Google Street View.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := env.LoadEnv()
		if err != nil {
			return err
		}

		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return err
		}
		if !loaded {
			zap.L().Debug("no .env file found, using the process environment")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
