package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/camden-git/eventfaces/services"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register --user ID <image>",
	Short: "Register a selfie as a user's reference face",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().Uint("user", 0, "User id the selfie belongs to")
	_ = registerCmd.MarkFlagRequired("user")
}

func runRegister(cmd *cobra.Command, args []string) error {
	userID := mustGetUint(cmd, "user")
	if userID == 0 {
		return errors.New("--user must be a positive id")
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open selfie: %w", err)
	}
	defer file.Close()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.registrationService(a.notifier()).RegisterSelfie(context.Background(), userID, filepath.Base(args[0]), file)
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			return fmt.Errorf("%s. Please use a clear selfie", validationErr.Error())
		}
		return err
	}

	fmt.Printf("Registered a %d-d reference face for user %d (%s)\n", len(user.Embedding()), user.ID, *user.SelfiePath)
	return nil
}
