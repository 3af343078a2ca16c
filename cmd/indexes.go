package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/databases"
)

func indexesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes",
		Long:  `Create every index the API relies on, including the 2dsphere index on issue locations. Existing indexes are left alone.`,
		RunE:  runIndexes(cfg),
	}
}

func runIndexes(cfg *config.Config) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		client, db, err := connect(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		defer client.Disconnect(ctx)

		if err := databases.EnsureIndexes(ctx, db); err != nil {
			return err
		}
		zap.S().Infow("indexes are in place", "collections", len(databases.Indexes()))
		return nil
	}
}
