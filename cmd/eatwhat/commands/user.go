package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/store"
)

// NewUserCmd constructs the `eatwhat user` command group for managing
// profiles and dietary preferences.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user profiles and dietary preferences",
	}
	cmd.AddCommand(newUserCreateCmd(), newUserPrefsCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var p store.Profile

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user profile",
		Long: `Create a user profile and print it as JSON. The id is generated
unless --id is given.

Examples:
  eatwhat user create --username alice
  eatwhat user create --id u-42 --username bob --avatar https://img.example.com/bob.png`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p.Username = strings.TrimSpace(p.Username)
			if p.Username == "" {
				return fmt.Errorf("user create: --username must not be blank")
			}
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc := newServices(log)
			defer svc.Close()
			if err := svc.openStore(); err != nil {
				return fmt.Errorf("user create: %w", err)
			}
			if err := svc.store.CreateProfile(ctx, &p); err != nil {
				return fmt.Errorf("user create: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	cmd.Flags().StringVar(&p.ID, "id", "", "Profile id (default: a new UUID)")
	cmd.Flags().StringVar(&p.Username, "username", "", "Unique user name")
	cmd.Flags().StringVar(&p.AvatarURL, "avatar", "", "Avatar URL")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newUserPrefsCmd() *cobra.Command {
	var (
		userID string
		prefs  recipe.Preferences
	)

	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or replace a user's dietary preferences",
		Long: `Without preference flags, print the stored preferences of --user.
With any preference flag, replace them and print the result.

Examples:
  eatwhat user prefs --user u-42
  eatwhat user prefs --user u-42 --diet 素食 --cuisine 川菜,粤菜 --max-time 30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if prefs.CaloriesMin < 0 || prefs.CaloriesMax < 0 || prefs.MaxCookingTime < 0 {
				return fmt.Errorf("user prefs: --calories-min, --calories-max and --max-time must not be negative")
			}
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc := newServices(log)
			defer svc.Close()
			if err := svc.openStore(); err != nil {
				return fmt.Errorf("user prefs: %w", err)
			}

			if !prefs.IsZero() {
				if err := svc.store.UpsertPreferences(ctx, userID, &prefs); err != nil {
					return fmt.Errorf("user prefs: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), prefs)
			}
			stored, err := svc.store.Preferences(ctx, userID)
			if err != nil {
				return fmt.Errorf("user prefs: %w", err)
			}
			if stored == nil {
				return fmt.Errorf("user prefs: no preferences stored for %q", userID)
			}
			return printJSON(cmd.OutOrStdout(), stored)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User whose preferences are shown or replaced")
	addPreferenceFlags(cmd, &prefs)
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
