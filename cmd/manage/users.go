package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-echo-foodgram/internal/services"
	"go-echo-foodgram/internal/validation"
)

// SuperuserPasswordEnvVar supplies the password when --password is omitted.
const SuperuserPasswordEnvVar = "FOODGRAM_SUPERUSER_PASSWORD"

var superuser services.RegisterInput

var createSuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Create an administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if superuser.Password == "" {
			superuser.Password = os.Getenv(SuperuserPasswordEnvVar)
		}
		if err := validation.ValidateStruct(superuser); err != nil {
			return err
		}

		// No tokens are issued from the CLI.
		auth := services.NewAuthService(db, "", 0)
		user, err := auth.CreateSuperuser(cmd.Context(), superuser)
		if err != nil {
			return err
		}

		cmd.Printf("superuser %s created with id %d\n", user.Username, user.ID)
		return nil
	},
}

var deleteUserID uint

var deleteUserCmd = &cobra.Command{
	Use:   "deleteuser",
	Short: "Delete a user together with their recipes and memberships",
	RunE: func(cmd *cobra.Command, args []string) error {
		if deleteUserID == 0 {
			return fmt.Errorf("--id is required")
		}
		if err := services.NewUserService(db).Delete(cmd.Context(), deleteUserID); err != nil {
			return err
		}
		cmd.Printf("user %d deleted\n", deleteUserID)
		return nil
	},
}

func init() {
	flags := createSuperuserCmd.Flags()
	flags.StringVar(&superuser.Email, "email", "", "email address")
	flags.StringVar(&superuser.Username, "username", "", "username")
	flags.StringVar(&superuser.FirstName, "first-name", "Admin", "first name")
	flags.StringVar(&superuser.LastName, "last-name", "Admin", "last name")
	flags.StringVar(&superuser.Password, "password", "", "password (or "+SuperuserPasswordEnvVar+")")
	_ = createSuperuserCmd.MarkFlagRequired("email")
	_ = createSuperuserCmd.MarkFlagRequired("username")

	deleteUserCmd.Flags().UintVar(&deleteUserID, "id", 0, "user id")
	_ = deleteUserCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(createSuperuserCmd, deleteUserCmd)
}
