package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/indexer"
	"github.com/54b3r/eatwhat-go/internal/logging"
)

// NewIndexCmd constructs the `eatwhat index` command, which embeds the
// recipe catalog into the Qdrant collection.
func NewIndexCmd() *cobra.Command {
	var (
		remove    []string
		status    bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the recipe catalog into the vector store",
		Long: `Embed every recipe in the catalog and upsert it into the Qdrant collection.

Re-running is safe: points are keyed by recipe id, so an updated recipe
replaces its previous vector.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: recipes)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: siliconflow, openai, ollama (default: siliconflow)
  DATABASE_URL         Catalog database (default: eatwhat.db)

Examples:
  eatwhat index
  eatwhat index --status
  eatwhat index --remove 7f3c2a --remove 9b1d44`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc := newServices(log)
			defer svc.Close()

			if err := svc.openStore(); err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if err := svc.openIndex(ctx); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			pipeline, err := indexer.NewPipeline(svc.emb, svc.qdrant, svc.store, &indexer.Config{BatchSize: batchSize})
			if err != nil {
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			switch {
			case status:
				st, err := pipeline.Status(ctx)
				if err != nil {
					return fmt.Errorf("index: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), st)

			case len(remove) > 0:
				svc.openCache(ctx)
				for _, id := range remove {
					if err := pipeline.Remove(ctx, id); err != nil {
						return fmt.Errorf("index: remove %s: %w", id, err)
					}
					if svc.cache != nil {
						if err := svc.cache.InvalidateRecipe(ctx, id); err != nil {
							log.Warn("cache invalidation failed", slog.String("recipe_id", id), slog.Any("error", err))
						}
					}
					log.Info("recipe removed from index", slog.String("recipe_id", id))
				}
				return nil
			}

			n, err := pipeline.Run(ctx, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("index: pipeline failed: %w", err)
			}
			log.Info("indexing complete", slog.Int("recipes", n))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&remove, "remove", nil, "Recipe id to delete from the index (repeatable)")
	cmd.Flags().BoolVar(&status, "status", false, "Print the index status and exit")
	cmd.Flags().IntVar(&batchSize, "batch-size", 32, "Recipes embedded per request")
	cmd.MarkFlagsMutuallyExclusive("remove", "status")

	return cmd
}
