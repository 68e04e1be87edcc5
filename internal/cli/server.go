package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctf-scoring-service/internal/app"
	"ctf-scoring-service/internal/config"
	"ctf-scoring-service/internal/grader"
	"ctf-scoring-service/internal/infra/memory"
	"ctf-scoring-service/internal/infra/postgres"
	infraredis "ctf-scoring-service/internal/infra/redis"
	"ctf-scoring-service/internal/logging"
	transport "ctf-scoring-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the scoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends are the storage implementations picked from config.
type backends struct {
	catalog     app.Catalog
	submissions app.SubmissionStore
	chat        app.ChatStore
	boardCache  app.BoardCache
	feeds       app.FeedRepository
	relay       app.FeedRelay
	close       func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	secret := cfg.JWTSecret()
	if secret == "" {
		return errors.New("jwt secret not configured")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	stores, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	provider, err := grader.NewProvider(grader.ProviderConfig{
		Name:      cfg.Grader.Provider,
		Model:     cfg.Grader.Model,
		BaseURL:   cfg.Grader.BaseURL,
		APIKeyEnv: cfg.Grader.APIKeyEnv,
	})
	if err != nil {
		return err
	}
	llm := grader.NewClient(provider, grader.Options{
		Timeout:    config.TTLDuration(cfg.Grader.Timeout, 20*time.Second),
		MaxRetries: cfg.GraderRetries(),
		RetryDelay: config.TTLDuration(cfg.Grader.RetryDelay, 600*time.Millisecond),
		Logger:     logger.Named("grader"),
	})

	tasks := app.NewTaskQueue(cfg.Tasks.Workers, cfg.Tasks.QueueSize, 10*time.Second, logger.Named("tasks"))
	boards := app.NewLeaderboardService(stores.catalog, stores.submissions, app.LeaderboardOptions{
		Cache:           stores.boardCache,
		Feeds:           stores.feeds,
		Relay:           stores.relay,
		Logger:          logger.Named("leaderboard"),
		DefaultPageSize: cfg.Leaderboard.PageSize,
		MaxPageSize:     cfg.Leaderboard.MaxPageSize,
	})
	submissions := app.NewSubmissionService(stores.catalog, llm, stores.submissions, app.SubmissionOptions{
		Boards:       boards,
		Tasks:        tasks,
		Logger:       logger.Named("submissions"),
		GradeTimeout: llm.Budget(),
	})
	chat := app.NewChatService(stores.catalog, llm, stores.chat, app.ChatOptions{
		Tasks:        tasks,
		Logger:       logger.Named("chat"),
		CoachTimeout: llm.Budget(),
	})

	router := transport.NewRouter(transport.Deps{
		Submissions: submissions,
		Boards:      boards,
		Reports:     app.NewReportService(stores.catalog, stores.submissions),
		Chat:        chat,
		Auth:        transport.NewAuthenticator(secret),
		Logger:      logger.Named("http"),
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: llm.Budget() + 15*time.Second,
	}

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go func() {
		if err := boards.Relay(relayCtx); err != nil {
			logger.Error("leaderboard relay stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("starting scoring service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	if err := tasks.Close(shutdownCtx); err != nil {
		logger.Warn("background tasks did not drain", zap.Error(err))
	}
	return shutdownErr
}

// openBackends prefers Postgres and Redis when configured and falls back to
// in-memory stores seeded from the catalog file.
func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	var closers []func()
	b := &backends{close: func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		db := openBunDB(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })

		b.catalog = postgres.NewCatalog(pool)
		b.submissions = postgres.NewSubmissionStore(db)
		b.chat = postgres.NewChatStore(db)
		logger.Info("using postgres storage")
	} else {
		catalog := memory.NewCatalog()
		if cfg.Catalog.SeedFile != "" {
			seeded, err := memory.LoadCatalogSeed(cfg.Catalog.SeedFile)
			if err != nil {
				return nil, err
			}
			catalog = seeded
		}
		b.catalog = catalog
		b.submissions = memory.NewSubmissionStore(catalog)
		b.chat = memory.NewChatStore()
		logger.Warn("postgres not configured, submissions are kept in memory")
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	boardTTL := config.TTLDuration(cfg.Leaderboard.CacheTTL, 30*time.Second)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			b.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })

		b.catalog = infraredis.NewCachedCatalog(client, b.catalog, catalogTTL)
		b.boardCache = infraredis.NewBoardCache(client, boardTTL)
		feeds := infraredis.NewFeedStore(client)
		b.feeds, b.relay = feeds, feeds
		logger.Info("using redis caches")
	} else {
		b.catalog = memory.NewCachedCatalog(b.catalog, catalogTTL)
		b.boardCache = memory.NewBoardCache(boardTTL)
		b.feeds = memory.NewFeedStore()
	}
	return b, nil
}
