package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidtube/backend/internal/accounts"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/channels"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/events"
	"github.com/vidtube/backend/internal/handlers"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/repositories"
	"github.com/vidtube/backend/internal/storage"
	"github.com/vidtube/backend/internal/tokens"
)

const dialTimeout = 5 * time.Second

type cleanupFunc func(context.Context) error

// redisPinger adapts a redis client to handlers.Pinger.
type redisPinger struct{ client redis.UniversalClient }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup releases broker and cache connections.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, cleanupFunc, error) {
	var closers []func() error
	cleanup := func(context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (handlers.Dependencies, cleanupFunc, error) {
		_ = cleanup(ctx)
		return handlers.Dependencies{}, nil, err
	}

	manager, err := tokens.NewManager(tokens.Config{
		AccessSecret:  []byte(cfg.Tokens.AccessSecret),
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshSecret: []byte(cfg.Tokens.RefreshSecret),
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	})
	if err != nil {
		return fail(err)
	}

	checks := map[string]handlers.Pinger{"database": pool}

	var ledger auth.Ledger
	switch cfg.Ledger.Backend {
	case config.LedgerPostgres:
		ledger = repositories.NewPostgresLedger(pool)
	case config.LedgerMemory:
		logger.Warn("using in-memory session ledger; sessions do not survive restarts")
		ledger = auth.NewInMemoryLedger()
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, client.Close)

		pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("connect redis ledger: %w", err))
		}
		ledger = repositories.NewRedisLedger(client, "", cfg.Tokens.RefreshTTL)
		checks["ledger"] = redisPinger{client: client}
	default:
		return fail(fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend))
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.DialAMQP(cfg.AMQPURL, events.DefaultQueue, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, amqpPublisher.Close)
		publisher = amqpPublisher
	}

	deps := handlers.Dependencies{
		Cookies:      handlers.CookieSettings{Secure: cfg.Cookies.Secure, Domain: cfg.Cookies.Domain},
		UploadDir:    cfg.UploadDir,
		HealthChecks: checks,
	}

	var blobs accounts.BlobStore
	if cfg.ObjectStore.Bucket != "" {
		s3Store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return fail(err)
		}
		blobs = s3Store
	} else {
		local, err := storage.NewLocalStorage(filepath.Join(cfg.UploadDir, "vidtube-media"), handlers.MediaPrefix)
		if err != nil {
			return fail(err)
		}
		blobs = local
		deps.MediaDir = local.Dir()
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fail(err)
	}
	deps.TrustedProxies = proxies

	if cfg.RateLimit.Requests > 0 {
		deps.RateLimiter = middleware.NewKeyedLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, 10*cfg.RateLimit.Window)
		deps.RetryAfter = cfg.RateLimit.Window
	}

	principals := repositories.NewPostgresPrincipalRepository(pool)
	deps.Sessions = auth.NewService(principals, manager, ledger, publisher)
	deps.Accounts = accounts.NewService(principals, blobs)
	deps.Channels = channels.NewService(repositories.NewPostgresChannelRepository(pool))

	return deps, cleanup, nil
}
