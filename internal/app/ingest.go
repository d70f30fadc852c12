package app

import (
	"context"
	"errors"

	"bidstack/internal/pipeline"
	"bidstack/internal/querycache"
	"bidstack/internal/service"
	"bidstack/internal/storage"
)

// Ingest prepares cached raw extracts over a window and writes them to Postgres.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	bins, err := a.Config.PriceBins()
	if err != nil {
		return err
	}

	chunk := a.Config.Ingest.Chunk
	if opts.Chunk != "" {
		chunk = opts.Chunk
	}
	period := pipeline.Period(chunk)
	if period != pipeline.Month && period != pipeline.Day {
		return errors.New("--chunk 只支持 month 或 day")
	}

	var store service.DatasetStore
	if !opts.DryRun {
		pool, closePool, err := a.openPool(ctx)
		if err != nil {
			return err
		}
		defer closePool()
		if pool == nil {
			return errors.New("database.dsn 未配置，无法导入")
		}

		s := storage.NewStore(pool, a.Config.Database.BatchSize)
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}
		store = s
	}

	ingester := service.NewIngester(a.Config, a.newSource(), store, bins, a.Logger)
	if store != nil && a.Config.Redis.Enabled {
		cfg := a.Config.Redis
		cache, err := querycache.NewRedisStore(ctx, cfg.Addr, cfg.Password, cfg.DB)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("redis 不可用，查询缓存将在 TTL 后过期")
		} else {
			defer cache.Close()
			ingester.InvalidateCache(querycache.NewInvalidator(cache, cfg.Prefix))
		}
	}
	report, err := ingester.Run(ctx, service.IngestOptions{From: opts.From, To: opts.To, Period: period})
	if errors.Is(err, service.ErrLockHeld) {
		a.Logger.Warn().Msg("另一个导入任务正在运行，跳过")
		return err
	}
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("chunks", report.Chunks).
		Int("bands", report.Bands).
		Int("dropped", report.Summary.Dropped()).
		Int("out_of_range", report.OutOfRange).
		Msg("导入完成")
	return nil
}
