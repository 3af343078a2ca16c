package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

type seedAdminOptions struct {
	name       string
	email      string
	password   string
	department string
}

func seedAdminCmd(cfg *config.Config) *cobra.Command {
	var opts seedAdminOptions
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin official",
		Long: `Create an official with the team-lead designation. Team leads can assign issues
and review field reports. If --password is omitted you will be prompted for it.`,
		RunE: runSeedAdmin(cfg, &opts),
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.email, "email", "", "login email")
	cmd.Flags().StringVar(&opts.password, "password", "", "password, prompted when empty")
	cmd.Flags().StringVar(&opts.department, "department", "General Municipal Department", "department")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runSeedAdmin(cfg *config.Config, opts *seedAdminOptions) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		password := opts.password
		if password == "" {
			var err error
			if password, err = promptPassword(); err != nil {
				return err
			}
		}
		if len(password) < 8 {
			return errors.New("password must be at least 8 characters")
		}

		client, db, err := connect(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		defer client.Disconnect(ctx)

		stores := databases.NewStores(db)
		auth := services.NewAuthService(stores.Users, cfg.Auth)
		user, err := auth.CreateUser(ctx, opts.name, opts.email, password, models.UserOfficial, models.DesignationTeamLead, opts.department)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created official %s (%s)\n", user.Email, user.ID.Hex())
		return nil
	}
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	if term.IsTerminal(int(syscall.Stdin)) {
		b, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
