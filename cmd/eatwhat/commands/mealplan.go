package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/mealplan"
	"github.com/54b3r/eatwhat-go/internal/recipe"
)

// NewMealPlanCmd constructs the `eatwhat mealplan` command, which fills a
// date range with catalog recipes and stores the plan.
func NewMealPlanCmd() *cobra.Command {
	var (
		userID     string
		start, end string
		prefs      recipe.Preferences
	)

	cmd := &cobra.Command{
		Use:   "mealplan",
		Short: "Plan breakfast, lunch and dinner over a date range",
		Long: `Plan breakfast, lunch and dinner for every day from --start until --end.

Candidates come from the catalog, filtered by diet, cuisine and cooking
time. A recipe is used at most once per plan. Planned meals are stored and
printed as JSON.

Examples:
  eatwhat mealplan --user u-42 --start 2026-10-19 --end 2026-10-26
  eatwhat mealplan --user u-42 --start 2026-10-19 --end 2026-10-20 --diet vegetarian`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := time.Parse(time.DateOnly, start)
			if err != nil {
				return fmt.Errorf("mealplan: --start: %w", err)
			}
			to, err := time.Parse(time.DateOnly, end)
			if err != nil {
				return fmt.Errorf("mealplan: --end: %w", err)
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc := newServices(log)
			defer svc.Close()
			if err := svc.openStore(); err != nil {
				return fmt.Errorf("mealplan: %w", err)
			}

			plans, err := mealplan.New(svc.store).Generate(ctx, userID, from, to, &prefs)
			if err != nil {
				return fmt.Errorf("mealplan: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), plans)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User the plan is stored for")
	cmd.Flags().StringVar(&start, "start", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Day after the last planned day, YYYY-MM-DD")
	addPreferenceFlags(cmd, &prefs)
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}
