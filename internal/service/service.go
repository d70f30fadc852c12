package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bidstack/internal/bids"
	"bidstack/internal/config"
	"bidstack/internal/pipeline"
	"bidstack/internal/pricebins"
	"bidstack/internal/storage"
	"bidstack/internal/units"
)

// ErrLockHeld is returned when another process is ingesting.
var ErrLockHeld = errors.New("ingest advisory lock held elsewhere")

// DatasetStore persists prepared records and run bookkeeping.
type DatasetStore interface {
	UpsertUnits(ctx context.Context, metadata []units.Metadata) error
	SyncPriceBins(ctx context.Context, table *pricebins.Table) error
	WriteDataset(ctx context.Context, data pipeline.Dataset) error
	RecordRun(ctx context.Context, run *storage.IngestRun) error
}

// AdvisoryLocker provides a cross-process ingest lock.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// CacheInvalidator retires cached query results once stored rows change.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// IngestOptions selects the window to backfill.
type IngestOptions struct {
	From   time.Time
	To     time.Time
	Period pipeline.Period
}

// IngestReport totals one ingest run.
type IngestReport struct {
	Chunks     int
	Bands      int
	OutOfRange int
	Summary    bids.Summary
	Runs       []storage.IngestRun
}

// Ingester walks a window chunk by chunk, prepares records and writes them.
// A nil store turns the run into a dry run.
type Ingester struct {
	source  pipeline.Source
	store   DatasetStore
	bins    *pricebins.Table
	locker  AdvisoryLocker
	lockKey int64
	cache   CacheInvalidator
	logger  zerolog.Logger
	now     func() time.Time
}

// NewIngester constructs the ingest driver.
func NewIngester(cfg *config.Config, source pipeline.Source, store DatasetStore, bins *pricebins.Table, logger zerolog.Logger) *Ingester {
	var locker AdvisoryLocker
	if l, ok := store.(AdvisoryLocker); ok {
		locker = l
	}

	return &Ingester{
		source:  source,
		store:   store,
		bins:    bins,
		locker:  locker,
		lockKey: cfg.Database.AdvisoryLockKey,
		logger:  logger.With().Str("component", "ingest").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// InvalidateCache registers a result cache to retire after rows are written.
func (s *Ingester) InvalidateCache(cache CacheInvalidator) {
	s.cache = cache
}

// Run ingests [From, To]. Chunks never split an interval, so every band of an
// (interval, unit) is adjusted together.
func (s *Ingester) Run(ctx context.Context, opts IngestOptions) (IngestReport, error) {
	var report IngestReport
	from, to := opts.From.UTC(), opts.To.UTC()
	if to.Before(from) {
		return report, fmt.Errorf("ingest window %s..%s is empty", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		return report, ErrLockHeld
	}
	if unlock != nil {
		defer unlock()
	}
	defer func() {
		if s.store == nil || s.cache == nil || report.Chunks == 0 {
			return
		}
		if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("query cache not invalidated; stale rows live until TTL")
			return
		}
		s.logger.Info().Msg("query cache invalidated")
	}()

	registry, err := pipeline.LoadUnits(s.source)
	if err != nil {
		return report, err
	}
	if s.store != nil {
		if err := s.store.UpsertUnits(ctx, registry.All()); err != nil {
			return report, err
		}
		if err := s.store.SyncPriceBins(ctx, s.bins); err != nil {
			return report, err
		}
	} else {
		s.logger.Warn().Msg("ingest dry-run：不会写入数据库")
	}
	s.logger.Info().Int("units", registry.Len()).Int("bins", len(s.bins.Bins())).Msg("registration loaded")

	preparer := pipeline.New(s.source, registry)
	for _, chunk := range pipeline.Chunks(from, to, opts.Period) {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		if err := s.ingestChunk(ctx, preparer, chunk[0], chunk[1], &report); err != nil {
			return report, err
		}
	}

	s.logger.Info().
		Int("chunks", report.Chunks).
		Int("bands", report.Bands).
		Int("dispatch_records", report.Summary.DispatchRecords).
		Int("missing_telemetry", report.Summary.MissingTelemetry).
		Msg("ingest complete")
	return report, nil
}

func (s *Ingester) ingestChunk(ctx context.Context, preparer *pipeline.Preparer, start, end time.Time, report *IngestReport) error {
	started := s.now()
	data, summary, err := preparer.Prepare(start, end)
	if err != nil {
		return fmt.Errorf("prepare chunk %s: %w", start.Format(time.RFC3339), err)
	}

	outOfRange := 0
	for _, b := range data.Bids {
		if _, err := s.bins.Classify(b.Price); err != nil {
			outOfRange++
		}
	}

	if s.store != nil {
		if err := s.store.WriteDataset(ctx, data); err != nil {
			return err
		}
		run := storage.IngestRun{
			ID:               uuid.New(),
			WindowStart:      start,
			WindowEnd:        end,
			Bands:            len(data.Bids),
			DispatchRecords:  summary.DispatchRecords,
			MissingTelemetry: summary.MissingTelemetry,
			MissingPrice:     summary.MissingPrice,
			Trailing:         summary.TrailingIntervals,
			StartedAt:        started,
		}
		if err := s.store.RecordRun(ctx, &run); err != nil {
			return err
		}
		report.Runs = append(report.Runs, run)
	}

	report.Chunks++
	report.Bands += len(data.Bids)
	report.OutOfRange += outOfRange
	report.Summary.Merge(summary)

	s.logger.Info().
		Time("start", start).
		Time("end", end).
		Int("bands", len(data.Bids)).
		Int("zero_volume", summary.ZeroVolumeBands).
		Int("dispatch_records", summary.DispatchRecords).
		Int("regions", len(data.Regions)).
		Msg("chunk ingested")

	if summary.MissingTelemetry > 0 || summary.MissingPrice > 0 || summary.TrailingIntervals > 0 {
		event := s.logger.Warn().
			Time("start", start).
			Int("missing_telemetry", summary.MissingTelemetry).
			Int("missing_price", summary.MissingPrice).
			Int("trailing", summary.TrailingIntervals)
		if len(summary.Errors) > 0 {
			event = event.AnErr("sample", summary.Errors[0])
		}
		event.Msg("records dropped during normalisation")
	}
	if outOfRange > 0 {
		s.logger.Warn().Time("start", start).Int("bands", outOfRange).
			Float64("lower", s.bins.Lower()).Float64("upper", s.bins.Upper()).
			Msg("offer prices outside bin coverage; bid aggregation over this window will fail")
	}
	return nil
}

func (s *Ingester) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
