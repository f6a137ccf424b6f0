package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/indexer"
	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/mealplan"
	"github.com/54b3r/eatwhat-go/internal/recommend"
	"github.com/54b3r/eatwhat-go/internal/server"
	"github.com/54b3r/eatwhat-go/internal/tracing"
)

// NewServeCmd constructs the `eatwhat serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the eatwhat HTTP API server",
		Long: `Start the eatwhat HTTP API server.

The server exposes the recommendation API (blocking and SSE streaming),
catalog recommendations, meal-plan generation, recipe images and the
health, readiness and metrics endpoints.

Catalog routes need Qdrant and an embedding backend; when either is
unavailable the server still starts and those routes answer 503.

Examples:
  eatwhat serve
  eatwhat serve --port 9090
  EATWHAT_API_KEY=secret eatwhat serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("EATWHAT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("EATWHAT_PORT", port)
			}

			// Langfuse tracing is opt-in; flush is a no-op when disabled.
			flush := tracing.Install(tracing.ConfigFromEnv(), log)
			defer flush()

			svc := newServices(log)
			defer svc.Close()

			if err := svc.openStore(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			svc.openHistory()
			svc.openCache(ctx)
			if err := svc.openIndex(ctx); err != nil {
				log.Warn("vector index unavailable, catalog routes disabled", slog.Any("error", err))
			}

			router, err := buildRouter(ctx, svc.store, prometheus.DefaultRegisterer, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			deps := server.Deps{
				Recommender: recommend.New(router,
					recommend.WithHistory(svc.history),
					recommend.WithMetrics(recommend.NewMetrics(prometheus.DefaultRegisterer)),
				),
				MealPlans: mealplan.New(svc.store),
				History:   svc.history,
				Accounts:  svc.store,
				Providers: router,
			}

			if svc.qdrant != nil {
				deps.Retriever = svc.retrieval()
				pipeline, err := indexer.NewPipeline(svc.emb, svc.qdrant, svc.store, nil)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				deps.Vectors = pipeline
			}

			images, err := buildImages(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if images != nil {
				deps.Images = images
			}

			srv, err := server.New(deps, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   svc.pingers(),
				APIKey:    os.Getenv("EATWHAT_API_KEY"),
				RateLimit: getEnvFloat("EATWHAT_RATE_LIMIT", 0),
				RateBurst: getEnvInt("EATWHAT_RATE_BURST", 0),

				TrustProxy:   os.Getenv("EATWHAT_TRUST_PROXY") == "true",
				WriteTimeout: getEnvDuration("EATWHAT_WRITE_TIMEOUT", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: EATWHAT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: EATWHAT_PORT)")

	return cmd
}
