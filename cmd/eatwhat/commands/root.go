// Package commands defines all Cobra CLI commands for the eatwhat binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/audit"
	"github.com/54b3r/eatwhat-go/internal/config"
	"github.com/54b3r/eatwhat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eatwhat",
		Short: "eatwhat answers the question of what to eat",
		Long: `eatwhat recommends recipes.

Generative recommendations come from a configurable LLM provider (Coze,
DeepSeek, SiliconFlow, Ark, Dify, OpenAI, Ollama, Gemini or a per-user
custom endpoint). Catalog recommendations come from a vector index of the
recipe catalog, ranked against the user's preferences and favorites.

Settings are read from environment variables or a YAML config file
(~/.eatwhat/config.yaml). Environment variables always win.
See 'eatwhat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.eatwhat/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewRecommendCmd(),
		NewTodayCmd(),
		NewSimilarCmd(),
		NewIndexCmd(),
		NewMealPlanCmd(),
		NewUserCmd(),
		NewRecipeCmd(),
		NewVersionCmd(),
	)

	return root
}
