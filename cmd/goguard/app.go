package main

import (
	"context"
	"errors"
	"fmt"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/mailer"
	"github.com/MrEthical07/goGuard/store/pg"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type app struct {
	cfg    *fileConfig
	logger *zap.Logger
	redis  *redis.Client
	pool   *pgxpool.Pool
	engine *goGuard.Engine
}

// newApp connects Redis and Postgres and builds the engine. The caller
// owns Close.
func newApp(ctx context.Context, cfg *fileConfig, logger *zap.Logger) (*app, error) {
	if cfg.Postgres.URL == "" {
		return nil, errors.New("postgres url is empty (set postgres.url or GOGUARD_DATABASE_URL)")
	}

	a := &app{cfg: cfg, logger: logger}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	pool, err := pg.NewPool(ctx, pg.PoolConfig{
		URL:             cfg.Postgres.URL,
		MaxConns:        cfg.Postgres.MaxConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pool = pool
	store := pg.New(pool)

	policies, err := cfg.registry()
	if err != nil {
		a.Close()
		return nil, err
	}

	b := goGuard.New().
		WithConfig(cfg.engineConfig()).
		WithRedis(a.redis).
		WithCredentialStore(store).
		WithRoleStore(store).
		WithAuditStore(store).
		WithPolicies(policies).
		WithLogger(logger)

	if cfg.Mail.Host != "" {
		notifier, err := mailer.NewSMTPNotifier(cfg.Mail, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		b = b.WithNotifier(notifier)
	} else {
		logger.Warn("mail host not configured; confirmation tokens will not be delivered")
	}

	a.engine, err = b.Build()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return a, nil
}

// Close stops the engine, drains the audit buffers and releases the
// connections.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
		if err := a.engine.FlushAudit(context.Background()); err != nil {
			a.logger.Warn("final audit flush failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// withApp loads config, builds the app, runs fn and tears everything down.
func withApp(ctx context.Context, configPath string, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
