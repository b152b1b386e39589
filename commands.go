package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/borui/borui/internal/auth"
	"github.com/borui/borui/internal/config"
	"github.com/borui/borui/internal/database"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "borui",
		Short:        "Web control plane for bore tunnel servers and clients",
		Version:      fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, args []string) error { return serve() },
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the control plane (default)",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
		},
		newUserCmd("create-admin", "Create a dashboard user", createAdmin),
		newUserCmd("reset-password", "Reset a dashboard user's password", resetPassword),
	)
	return root
}

// newUserCmd builds a subcommand taking --username and --password that runs
// fn against an opened database.
func newUserCmd(use, short string, fn func(username, hash string) error) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			if err := database.Init(); err != nil {
				return fmt.Errorf("database init: %w", err)
			}
			defer database.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			return fn(username, hash)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}

func createAdmin(username, hash string) error {
	user := &database.User{Username: username, PasswordHash: hash}
	if err := database.CreateUser(user); err != nil {
		return fmt.Errorf("create user %q: %w", username, err)
	}
	fmt.Printf("User '%s' created successfully.\n", username)
	return nil
}

func resetPassword(username, hash string) error {
	user, err := database.GetUserByUsername(username)
	if err != nil {
		return fmt.Errorf("user %q: %w", username, err)
	}
	if err := database.UpdateUserPassword(user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	fmt.Printf("Password reset for '%s'. Existing tokens stay valid until they expire.\n", username)
	return nil
}

// ensureAdmin creates the initial account on an empty database.
func ensureAdmin() error {
	count, err := database.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := config.Cfg.InitAdminPassword
	if password == "" {
		password = "admin"
		log.Printf("WARNING: BORUI_INIT_ADMIN_PASSWORD is not set, initial user %q has password %q; change it", config.Cfg.InitAdmin, password)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := database.CreateUser(&database.User{Username: config.Cfg.InitAdmin, PasswordHash: hash}); err != nil {
		return err
	}
	log.Printf("Created initial user %q", config.Cfg.InitAdmin)
	return nil
}
