package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"bidstack/internal/alerting"
	"bidstack/internal/config"
	"bidstack/internal/memtable"
	"bidstack/internal/query"
	"bidstack/internal/querycache"
	"bidstack/internal/rawcache"
	"bidstack/internal/service"
	"bidstack/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newSource() rawcache.Dir {
	return rawcache.New(a.Config.Cache.Dir)
}

func (a *App) openPool(ctx context.Context) (*pgxpool.Pool, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

// newQueries builds every configured backend behind the optional result cache.
func (a *App) newQueries(ctx context.Context) (*service.Queries, func(), error) {
	bins, err := a.Config.PriceBins()
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var backends []query.Backend
	pool, closePool, err := a.openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closePool)
	if pool != nil {
		backends = append(backends, storage.NewExecutor(pool, bins))
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; postgres backend disabled")
	}

	reader, err := memtable.NewReader(a.newSource(), bins, a.Logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	backends = append(backends, reader)

	if a.Config.Redis.Enabled {
		cfg := a.Config.Redis
		store, err := querycache.NewRedisStore(ctx, cfg.Addr, cfg.Password, cfg.DB)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = store.Close() })
		for i, b := range backends {
			backends[i] = querycache.Wrap(b, store, cfg.TTL, cfg.Prefix, a.Logger)
		}
	}

	queries, err := service.NewQueries(a.Config.Query.Backend, a.Logger, backends...)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("%w; set database.dsn or query.backend=%s", err, config.BackendMemory)
	}
	return queries, closeAll, nil
}

// QueryOptions select a bid aggregation and the backend that answers it.
type QueryOptions struct {
	Query   query.BidQuery
	Backend string
}

// ExportOptions hold parameters for exporting aggregated bids.
type ExportOptions struct {
	QueryOptions
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// IngestOptions configure the ingest job.
type IngestOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
	Chunk  string
}

// VerifyOptions compare two backends on one query.
type VerifyOptions struct {
	Query query.BidQuery
	Left  string
	Right string
}
