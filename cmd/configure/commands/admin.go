package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkwell/inkwell-api/internal/database"
	"github.com/inkwell/inkwell-api/internal/models"
	"github.com/inkwell/inkwell-api/internal/validation"
)

// NewAdminCmd creates the admin command for inspecting and changing profile roles.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator roles",
	}
	cmd.AddCommand(newAdminShowCmd())
	cmd.AddCommand(newAdminSetRoleCmd("grant", "Grant the admin role to a user", string(models.RoleAdmin), false))
	cmd.AddCommand(newAdminSetRoleCmd("revoke", "Revoke the admin role, leaving the given role", string(models.RoleAuthor), true))
	return cmd
}

func newAdminShowCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's profile role",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			p, err := database.NewProfileRepository(db).GetByID(context.Background(), userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p == nil {
				fmt.Fprintf(out, "No profile found for %s\n", userID)
				return nil
			}
			fmt.Fprintf(out, "User:  %s\n", p.ID)
			fmt.Fprintf(out, "Role:  %s\n", p.Role)
			fmt.Fprintf(out, "Admin: %t\n", p.IsAdmin())
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id (identity provider subject) (required)")
	return cmd
}

func newAdminSetRoleCmd(use, short, defaultRole string, roleFlag bool) *cobra.Command {
	var userID string
	role := defaultRole
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if err := validation.ValidateRole(role); err != nil {
				return err
			}
			if use == "revoke" && models.Role(role) == models.RoleAdmin {
				return fmt.Errorf("--role must not be admin when revoking")
			}
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.NewProfileRepository(db).SetRole(context.Background(), userID, models.Role(role)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set role of %s to %s.\n", userID, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id (identity provider subject) (required)")
	if roleFlag {
		cmd.Flags().StringVar(&role, "role", defaultRole, "Role to leave the user with (author or reader)")
	}
	return cmd
}
