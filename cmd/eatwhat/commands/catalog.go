package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/retrieval"
)

// NewTodayCmd constructs the `eatwhat today` command, which prints the
// day's catalog recommendations for a user.
func NewTodayCmd() *cobra.Command {
	var (
		opts  retrieval.DailyOptions
		prefs recipe.Preferences
	)

	cmd := &cobra.Command{
		Use:   "today",
		Short: "Recommend recipes from the catalog for today",
		Long: `Recommend recipes from the indexed catalog.

The query vector is built from the user's preferences and recent
favorites, or from --query when given. The preference flags filter the
ranked page without reordering it; filtered pages bypass the cache.
Results are paged with --limit and --page.

Examples:
  eatwhat today --user u-42
  eatwhat today --query "清淡 汤" --limit 5 --page 2
  eatwhat today --cuisine 川菜,粤菜 --max-time 30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Limit < 1 || opts.Limit > retrieval.MaxLimit {
				return fmt.Errorf("today: --limit must be between 1 and %d", retrieval.MaxLimit)
			}
			if opts.Page < 1 {
				return fmt.Errorf("today: --page must be at least 1")
			}
			if err := applyFilter(&opts, &prefs); err != nil {
				return fmt.Errorf("today: %w", err)
			}
			return withRetrieval(cmd, "today", func(ctx context.Context, e *retrieval.Engine) (any, error) {
				return e.Daily(ctx, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "User whose preferences and favorites steer the results")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "Free-text query used instead of the user's profile")
	cmd.Flags().IntVar(&opts.Limit, "limit", retrieval.DefaultDailyLimit, "Recipes per page")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "Page number, starting at 1")
	addPreferenceFlags(cmd, &prefs)

	return cmd
}

// applyFilter attaches prefs to opts when any preference flag was given.
func applyFilter(opts *retrieval.DailyOptions, prefs *recipe.Preferences) error {
	if prefs.CaloriesMin < 0 || prefs.CaloriesMax < 0 || prefs.MaxCookingTime < 0 {
		return fmt.Errorf("--calories-min, --calories-max and --max-time must not be negative")
	}
	if prefs.IsZero() {
		opts.Preferences = nil
		return nil
	}
	opts.Preferences = prefs
	return nil
}

// NewSimilarCmd constructs the `eatwhat similar` command, which prints the
// catalog recipes closest to a given one.
func NewSimilarCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <recipe-id>",
		Short: "List catalog recipes similar to a recipe",
		Long: `List the catalog recipes whose embeddings are closest to the given recipe.
The recipe itself is never part of the result.

Examples:
  eatwhat similar 7f3c2a
  eatwhat similar 7f3c2a --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > retrieval.MaxLimit {
				return fmt.Errorf("similar: --limit must be between 1 and %d", retrieval.MaxLimit)
			}
			return withRetrieval(cmd, "similar", func(ctx context.Context, e *retrieval.Engine) (any, error) {
				return e.Similar(ctx, args[0], limit)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", retrieval.DefaultSimilarLimit, "Number of recipes to return")

	return cmd
}

// withRetrieval opens the catalog dependencies, runs fn against the engine
// and prints its result.
func withRetrieval(cmd *cobra.Command, name string, fn func(context.Context, *retrieval.Engine) (any, error)) error {
	log := logging.New()
	ctx := logging.WithLogger(cmd.Context(), log)

	svc := newServices(log)
	defer svc.Close()

	if err := svc.openStore(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := svc.openIndex(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	svc.openCache(ctx)

	res, err := fn(ctx, svc.retrieval())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return printJSON(cmd.OutOrStdout(), res)
}
