package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
	mongoinfra "quiz-session-engine/internal/infra/mongo"
	natsinfra "quiz-session-engine/internal/infra/nats"
	pginfra "quiz-session-engine/internal/infra/postgres"
	redisinfra "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/infra/retry"
	transport "quiz-session-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// notifier is both halves of the leaderboard change channel.
type notifier interface {
	app.Notifier
	app.Subscriber
}

// backends holds the connections opened for the configured drivers.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	mongo *mongo.Client
	nats  *natsinfra.Notifier
}

func (b *backends) close() {
	if b.nats != nil {
		b.nats.Close()
	}
	if b.mongo != nil {
		_ = b.mongo.Disconnect(context.Background())
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel == "" {
		applyLogLevel(cfg.Log.Level)
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	b, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	service, err := buildService(cfg, b)
	if err != nil {
		return err
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(transport.NewRouter(service))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := service.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending writes not flushed")
		return err
	}
	return nil
}

func connect(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
	}
	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.mongo = client
	}
	if cfg.Notify.Driver == "nats" {
		n, err := natsinfra.Connect(cfg.NATS.URL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.nats = n
	}
	return b, nil
}

func buildService(cfg config.Config, b *backends) (*app.QuizService, error) {
	var loader memory.ContentLoader = memory.NewStaticContentLoader(sampleContent())
	if b.pool != nil {
		loader = pginfra.NewContentLoader(b.pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var content app.ContentRepository
	if b.redis != nil {
		content = redisinfra.NewContentRepository(b.redis, loader, quizTTL)
	} else {
		content = memory.NewContentRepository(loader, quizTTL)
	}

	sessionTTL := config.TTLDuration(cfg.Session.TTL, 10*time.Minute)
	var sessions app.SessionRepository
	if b.redis != nil {
		sessions = redisinfra.NewSessionStore(b.redis, config.TTLDuration(cfg.Redis.TTL, time.Hour))
	} else {
		sessions = memory.NewSessionStore()
	}

	answers, err := answerLog(cfg, b)
	if err != nil {
		return nil, err
	}

	var store app.LeaderboardStore = memory.NewLeaderboardStore()
	switch cfg.Leaderboard.Store {
	case "redis":
		if b.redis == nil {
			return nil, fmt.Errorf("leaderboard store redis requires redis.addr")
		}
		store = redisinfra.NewLeaderboardStore(b.redis)
	case "", "memory":
		if cfg.Leaderboard.Store == "" && b.redis != nil {
			store = redisinfra.NewLeaderboardStore(b.redis)
		}
	default:
		return nil, fmt.Errorf("unknown leaderboard store %q", cfg.Leaderboard.Store)
	}

	var notes notifier = memory.NewNotifier()
	switch cfg.Notify.Driver {
	case "nats":
		if b.nats == nil {
			return nil, fmt.Errorf("notify driver nats requires a nats connection")
		}
		notes = b.nats
	case "redis":
		if b.redis == nil {
			return nil, fmt.Errorf("notify driver redis requires redis.addr")
		}
		notes = redisinfra.NewNotifier(b.redis)
	case "", "memory":
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Notify.Driver)
	}

	var profiles app.ProfileStore = memory.NewProfileStore()
	if b.pool != nil {
		profiles = pginfra.NewProfileStore(b.pool)
	}

	leaderboard := app.NewLeaderboardSync(retry.NewLeaderboardStore(store, retryPolicy(cfg)), notes, clockwork.NewRealClock(), cfg.Leaderboard.Limit)
	return app.NewQuizService(sessions, content, answers, leaderboard,
		app.WithProfiles(profiles),
		app.WithSubscriber(notes),
		app.WithRetention(sessionTTL),
	), nil
}

func answerLog(cfg config.Config, b *backends) (app.AnswerLog, error) {
	var next app.AnswerLog
	switch cfg.Persistence.Answers {
	case "postgres":
		if b.pool == nil {
			return nil, fmt.Errorf("answer log postgres requires postgres.url")
		}
		next = pginfra.NewAnswerLog(b.pool)
	case "mongo":
		if b.mongo == nil {
			return nil, fmt.Errorf("answer log mongo requires mongo.uri")
		}
		database := cfg.Mongo.Database
		if database == "" {
			database = "quiz"
		}
		next = mongoinfra.NewAnswerLog(b.mongo, database)
	case "", "memory":
		if cfg.Persistence.Answers == "" && b.pool != nil {
			next = pginfra.NewAnswerLog(b.pool)
		} else {
			next = memory.NewAnswerLog()
		}
	default:
		return nil, fmt.Errorf("unknown answer log %q", cfg.Persistence.Answers)
	}

	return retry.NewAnswerLog(next, retryPolicy(cfg)), nil
}

func retryPolicy(cfg config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxElapsedTime = config.TTLDuration(cfg.Persistence.RetryMaxElapsed, policy.MaxElapsedTime)
	policy.InitialInterval = config.TTLDuration(cfg.Persistence.RetryInitial, policy.InitialInterval)
	return policy
}

// sampleContent provides a minimal event; swap this loader with the Postgres-backed one in production.
func sampleContent() ([]domain.Event, []domain.Quiz) {
	events := []domain.Event{
		{ID: "event-1", Title: "Sample quiz", QuizID: "quiz-1"},
	}
	quizzes := []domain.Quiz{
		{
			ID:      "quiz-1",
			EventID: "event-1",
			Title:   "Warm-up",
			Questions: []domain.Question{
				{
					ID:       "q1",
					Position: 1,
					Prompt:   "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					CorrectOptionID:  "o2",
					TimeLimitSeconds: 20,
				},
				{
					ID:       "q2",
					Position: 2,
					Prompt:   "Which planet is closest to the sun?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus"},
						{ID: "o2", Text: "Mercury"},
						{ID: "o3", Text: "Mars"},
					},
					CorrectOptionID:  "o2",
					TimeLimitSeconds: 20,
				},
			},
		},
	}
	return events, quizzes
}
