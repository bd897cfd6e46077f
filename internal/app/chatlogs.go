package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vadim/chatlogs/internal/cache"
	"github.com/vadim/chatlogs/internal/config"
	"github.com/vadim/chatlogs/internal/database"
	"github.com/vadim/chatlogs/internal/domain/chatlog/dao"
	"github.com/vadim/chatlogs/internal/domain/chatlog/policy"
	"github.com/vadim/chatlogs/internal/domain/chatlog/service"
	"github.com/vadim/chatlogs/internal/events"
	"github.com/vadim/chatlogs/internal/render"
	"github.com/vadim/chatlogs/internal/storage"
)

// NewLogger creates the JSON logger used by every component
func NewLogger(w io.Writer, cfg config.Log) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// Chatlogs holds the wired chat log domain and the infrastructure it runs on.
// It is shared by the HTTP server and the command line tool.
type Chatlogs struct {
	Policy   *policy.Policy
	Pool     *pgxpool.Pool
	Events   *events.Client      // nil when NATS is not configured
	Senders  *cache.KnownSenders // nil when Redis is not configured
	Renderer *render.Renderer

	sourcePool *pgxpool.Pool
	redis      *redis.Client
	logger     *slog.Logger
}

// NewChatlogs connects to the configured backends and wires the domain layers
func NewChatlogs(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Chatlogs, error) {
	c := &Chatlogs{logger: logger}

	if err := c.initInfrastructure(ctx, cfg); err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}
	if err := c.initDomain(cfg); err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing domain: %w", err)
	}
	return c, nil
}

func (c *Chatlogs) initInfrastructure(ctx context.Context, cfg config.Config) error {
	poolOpts := []database.PoolOption{
		database.WithMaxConns(cfg.Database.MaxOpenConns),
		database.WithMinConns(cfg.Database.MaxIdleConns),
		database.WithConnLifetime(cfg.Database.ConnLifetime),
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.PostgresDSN, poolOpts...)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	c.Pool = pool

	if cfg.Source.DSN != "" {
		sourcePool, err := database.NewPostgresPool(ctx, cfg.Source.DSN, database.WithMaxConns(2), database.WithMinConns(0))
		if err != nil {
			return fmt.Errorf("connecting to log source: %w", err)
		}
		c.sourcePool = sourcePool
	}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		c.redis = rdb
		c.Senders = cache.NewKnownSenders(rdb, cfg.Redis.Key)
	}

	if cfg.NATS.URL != "" {
		client, err := events.NewClient(ctx, cfg.NATS.URL, cfg.NATS.SubjectPrefix, c.logger)
		if err != nil {
			return err
		}
		c.Events = client
	}

	return nil
}

func (c *Chatlogs) initDomain(cfg config.Config) error {
	store := storeAdapter{store: dao.NewStore(c.Pool)}

	var sourceDB dao.DBTX = c.Pool
	if c.sourcePool != nil {
		sourceDB = c.sourcePool
	}
	source := dao.NewSourcePostgres(sourceDB, cfg.Source.Table)

	ingestOpts := []service.IngestorOption{service.WithConversationGap(cfg.Chatlogs.ConversationGap)}
	if c.Senders != nil {
		ingestOpts = append(ingestOpts, service.WithKnownSenders(c.Senders))
	}

	svc := service.New(store)
	ingestor := service.NewIngestor(store, source, c.logger, ingestOpts...)
	reconciler := service.NewReconciler(store, c.logger)

	// Links leaving the process (archived pages, run summaries) must be absolute
	renderer, err := render.New(render.WithBaseURL(cfg.Chatlogs.BaseURL))
	if err != nil {
		return err
	}
	c.Renderer = renderer

	opts := []policy.Option{policy.WithLogger(c.logger)}
	if c.Events != nil {
		opts = append(opts, policy.WithPublisher(c.Events))
	}
	if cfg.S3.Enabled() {
		archive, err := storage.NewS3Storage(storage.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			PublicURL:       cfg.S3.PublicURL,
		})
		if err != nil {
			return fmt.Errorf("creating archive storage: %w", err)
		}
		opts = append(opts, policy.WithArchive(archive))
	}

	c.Policy = policy.New(svc, ingestor, reconciler, renderer, opts...)

	c.logger.Info("chatlog domain initialized",
		"conversation_gap", ingestor.Gap(),
		"source_table", cfg.Source.Table,
		"archive", cfg.S3.Enabled(),
		"events", c.Events != nil,
		"known_senders", c.Senders != nil,
	)
	return nil
}

// Migrate applies the chat log schema
func (c *Chatlogs) Migrate(ctx context.Context) error {
	return dao.Migrate(ctx, c.Pool)
}

// Ping checks database connectivity
func (c *Chatlogs) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

// Close releases every connection
func (c *Chatlogs) Close() {
	if c.Events != nil {
		c.Events.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Warn("closing redis", "error", err)
		}
	}
	if c.sourcePool != nil {
		c.sourcePool.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

var _ service.Store = storeAdapter{}

// storeAdapter exposes the Postgres store through the service interfaces
type storeAdapter struct {
	store *dao.Store
}

func (a storeAdapter) Conversations() service.ConversationRepository {
	return a.store.Conversations()
}

func (a storeAdapter) Messages() service.MessageRepository {
	return a.store.Messages()
}

func (a storeAdapter) Participants() service.ParticipantRepository {
	return a.store.Participants()
}

func (a storeAdapter) WithTx(ctx context.Context, fn func(tx service.Store) error) error {
	return a.store.WithTx(ctx, func(tx *dao.Store) error {
		return fn(storeAdapter{store: tx})
	})
}
