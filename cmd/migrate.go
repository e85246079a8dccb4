package cmd

import (
	"fmt"

	"heartsync-backend/internal/database"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(database.Up), string(database.Down)},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		direction := database.Direction(args[0])
		if err := database.Migrate(cfg.Database.DSN(), direction); err != nil {
			return err
		}
		log.Info().Str("direction", args[0]).Msg("Migrations applied")
		return nil
	},
}
