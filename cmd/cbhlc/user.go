package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/internal/service"
)

func newCreateUserCmd() *cobra.Command {
	var req service.CreateUserRequest
	var role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Provision a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			req.Role = models.UserRole(strings.ToUpper(role))
			user, err := a.auth.CreateUser(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "login email")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password, at least 8 characters")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "one of SUPER_ADMIN, ADMIN, REGISTRAR, GUARDIAN, STUDENT")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
