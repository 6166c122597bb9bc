package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuecode/cuecode/internal/config"
	"github.com/cuecode/cuecode/internal/embedding"
	"github.com/cuecode/cuecode/internal/logging"
	"github.com/cuecode/cuecode/internal/metrics"
	"github.com/cuecode/cuecode/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the collaborators one command invocation wires together.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector

	pool  *pgxpool.Pool
	redis *redis.Client
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
	}, nil
}

// openPool connects to the database configured under database.url.
func (a *app) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	a.logger.Debug("Connecting to database", logging.ConnString("url", a.cfg.Database.URL))
	pool, err := store.NewPool(ctx, &store.PoolConfig{
		URL:            a.cfg.Database.URL,
		MaxConnections: a.cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return pool, nil
}

func (a *app) postgresStore(ctx context.Context) (*store.PostgresStore, error) {
	pool, err := a.openPool(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewPostgresStore(pool, a.logger), nil
}

// embedder builds the OpenAI-compatible embedder, fronted by the Redis
// cache when cache.redis-addr is set.
func (a *app) embedder(ctx context.Context) (embedding.Embedder, error) {
	if err := a.cfg.RequireEmbedding(); err != nil {
		return nil, err
	}
	e, err := embedding.NewOpenAIEmbedder(&embedding.Config{
		Endpoint: a.cfg.Embedding.Endpoint,
		Model:    a.cfg.Embedding.Model,
		APIKey:   a.cfg.Embedding.APIKey,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	if a.cfg.Cache.RedisAddr == "" {
		return e, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Cache.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		a.logger.Warn("Embedding cache unavailable, continuing without it",
			logging.ConnString("redis_addr", a.cfg.Cache.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		return e, nil
	}
	a.redis = rdb
	return embedding.NewCachedEmbedder(e, rdb, e.Model(), a.cfg.Cache.TTL, a.logger), nil
}

// close releases connections and writes the metrics textfile when one is
// configured.
func (a *app) close() {
	if a.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
			a.logger.Warn("Failed to write metrics textfile", zap.String("path", a.cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
