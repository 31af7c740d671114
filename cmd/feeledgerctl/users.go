package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

// passwordEnv supplies the password when --password is omitted, so it stays
// out of shell history.
const passwordEnv = "FEELEDGER_USER_PASSWORD"

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUsersAddCmd(a), newSetActiveCmd(a, "activate", true), newSetActiveCmd(a, "deactivate", false))
	return cmd
}

func newUsersAddCmd(a *app) *cobra.Command {
	var in core.RegisterInput
	var role string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user account of any role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				in.Password = os.Getenv(passwordEnv)
			}
			if in.Password == "" {
				return errors.New("a password is required: pass --password or set " + passwordEnv)
			}
			in.Role = core.Role(role)

			ctx := cmd.Context()
			repo, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			user, err := services.NewAuthService(repo, nil, nil).Provision(ctx, in)
			if err != nil {
				return errors.New(core.MessageOf(err))
			}
			cmd.Printf("created %s user %s (id %d)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "login email")
	f.StringVar(&in.Password, "password", "", "initial password (defaults to $"+passwordEnv+")")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	f.StringVar(&role, "role", string(core.RoleAdmin), "one of admin, teacher or student")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	return cmd
}

func newSetActiveCmd(a *app, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " EMAIL",
		Short: "Set whether the account with EMAIL may log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := services.NewAuthService(repo, nil, nil).SetActive(ctx, args[0], active); err != nil {
				return errors.New(core.MessageOf(err))
			}
			cmd.Printf("%sd %s\n", use, args[0])
			return nil
		},
	}
}
