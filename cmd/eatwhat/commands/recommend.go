package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/provider"
	"github.com/54b3r/eatwhat-go/internal/recipe"
	"github.com/54b3r/eatwhat-go/internal/recommend"
	"github.com/54b3r/eatwhat-go/internal/tracing"
)

// NewRecommendCmd constructs the `eatwhat recommend` command, which asks an
// LLM provider for a recipe and prints it as JSON.
func NewRecommendCmd() *cobra.Command {
	var (
		req    recommend.Request
		meal   string
		daily  bool
		weekly bool
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Generate a recipe recommendation with an LLM provider",
		Long: `Generate a recipe for one meal, a whole day or a whole week.

The provider defaults to coze. The custom provider reads the user's own
endpoint and key from the store, so it needs --user.

With --stream the raw model output is written to stderr as it arrives and
the parsed result is printed to stdout once the stream ends.

Examples:
  eatwhat recommend --meal dinner --cuisine 川菜
  eatwhat recommend --daily --provider deepseek --diet vegetarian
  eatwhat recommend --weekly --max-time 30
  eatwhat recommend --provider custom --user u-42 --stream`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if stream && weekly {
				return errors.New("recommend: --stream supports single and daily recommendations only")
			}
			req.MealType = recipe.MealType(meal)
			if meal != "" && !req.MealType.Valid() {
				return fmt.Errorf("recommend: --meal must be one of breakfast, lunch, dinner, got %q", meal)
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush := tracing.Install(tracing.ConfigFromEnv(), log)
			defer flush()

			svc := newServices(log)
			defer svc.Close()

			// Only the custom provider reads settings from the store.
			if provider.ParseKind(req.Provider) == provider.KindCustom {
				if err := svc.openStore(); err != nil {
					return fmt.Errorf("recommend: %w", err)
				}
			}
			svc.openHistory()

			router, err := buildRouter(ctx, svc.store, nil, log)
			if err != nil {
				return fmt.Errorf("recommend: %w", err)
			}
			orch := recommend.New(router, recommend.WithHistory(svc.history))

			out := cmd.OutOrStdout()
			onChunk := func(chunk string) { _, _ = io.WriteString(cmd.ErrOrStderr(), chunk) }

			var result any
			switch {
			case weekly:
				result, err = orch.Weekly(ctx, &req)
			case daily && stream:
				result, err = orch.StreamDaily(ctx, &req, onChunk)
			case daily:
				result, err = orch.Daily(ctx, &req)
			case stream:
				result, err = orch.StreamSingle(ctx, &req, onChunk)
			default:
				result, err = orch.Single(ctx, &req)
			}
			if stream {
				_, _ = io.WriteString(cmd.ErrOrStderr(), "\n")
			}
			if err != nil {
				return fmt.Errorf("recommend: %w", err)
			}
			return printJSON(out, result)
		},
	}

	cmd.Flags().StringVar(&req.Provider, "provider", string(provider.KindCoze), "LLM provider: coze, deepseek, siliconflow, ark, dify, openai, ollama, gemini, custom")
	cmd.Flags().StringVar(&req.UserID, "user", "", "User id, required by the custom provider")
	cmd.Flags().StringVar(&meal, "meal", "", "Meal type for a single recommendation: breakfast, lunch or dinner")
	cmd.Flags().BoolVar(&daily, "daily", false, "Recommend breakfast, lunch and dinner")
	cmd.Flags().BoolVar(&weekly, "weekly", false, "Recommend seven days of meals")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the raw model output to stderr")
	addPreferenceFlags(cmd, &req.Preferences)
	cmd.MarkFlagsMutuallyExclusive("daily", "weekly")
	cmd.MarkFlagsMutuallyExclusive("meal", "daily")
	cmd.MarkFlagsMutuallyExclusive("meal", "weekly")

	return cmd
}
