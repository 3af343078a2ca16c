// Package cmd holds the citizenvoice-api command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/databases"
)

// Execute runs the root command and exits non-zero on failure
func Execute() {
	cfg := config.New()

	root := &cobra.Command{
		Use:   "citizenvoice-api",
		Short: "CitizenVoice issue reporting API",
		Long: `CitizenVoice API server and maintenance commands.

Available commands:
  serve       - Run the HTTP API
  indexes     - Create the MongoDB indexes
  seed-admin  - Create an admin official`,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	root.AddCommand(serveCmd(cfg))
	root.AddCommand(indexesCmd(cfg))
	root.AddCommand(seedAdminCmd(cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect opens a client against cfg and returns the configured database
func connect(cfg *config.Config) (databases.ClientHelper, databases.DatabaseHelper, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := databases.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create database client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return client, databases.NewDatabase(cfg, client), nil
}
