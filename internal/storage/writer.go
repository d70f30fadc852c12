package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bidstack/internal/market"
	"bidstack/internal/pipeline"
	"bidstack/internal/pricebins"
	"bidstack/internal/units"
)

const (
	upsertUnitSQL = `INSERT INTO duid_info (
        duid, region, fuel_source, dispatch_type, technology, unit_type, station_name
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (duid) DO UPDATE
    SET
        region        = EXCLUDED.region,
        fuel_source   = EXCLUDED.fuel_source,
        dispatch_type = EXCLUDED.dispatch_type,
        technology    = EXCLUDED.technology,
        unit_type     = EXCLUDED.unit_type,
        station_name  = EXCLUDED.station_name;`

	upsertBidSQL = `INSERT INTO bidding_data (
        interval_datetime, duid, bidband, bidprice, bidvolume, bidvolumeadjusted
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (interval_datetime, duid, bidband) DO UPDATE
    SET
        bidprice          = EXCLUDED.bidprice,
        bidvolume         = EXCLUDED.bidvolume,
        bidvolumeadjusted = EXCLUDED.bidvolumeadjusted;`

	upsertDispatchSQL = `INSERT INTO unit_dispatch (
        interval_datetime, duid, availability, totalcleared, finalmw,
        asbidrampupmaxavail, asbidrampdownminavail, rampupmaxavail, rampdownminavail,
        pasaavailability, maxavail
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (interval_datetime, duid) DO UPDATE
    SET
        availability          = EXCLUDED.availability,
        totalcleared          = EXCLUDED.totalcleared,
        finalmw               = EXCLUDED.finalmw,
        asbidrampupmaxavail   = EXCLUDED.asbidrampupmaxavail,
        asbidrampdownminavail = EXCLUDED.asbidrampdownminavail,
        rampupmaxavail        = EXCLUDED.rampupmaxavail,
        rampdownminavail      = EXCLUDED.rampdownminavail,
        pasaavailability      = EXCLUDED.pasaavailability,
        maxavail              = EXCLUDED.maxavail;`

	upsertDemandSQL = `INSERT INTO demand_data (
        settlementdate, regionid, totaldemand, rrp
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (settlementdate, regionid) DO UPDATE
    SET
        totaldemand = EXCLUDED.totaldemand,
        rrp         = EXCLUDED.rrp;`

	deleteBinsSQL = `DELETE FROM price_bins;`

	insertBinSQL = `INSERT INTO price_bins (
        bin_name, lower_edge, upper_edge, closed, position
    ) VALUES (
        $1,$2,$3,$4,$5
    );`

	insertRunSQL = `INSERT INTO ingest_runs (
        id, window_start, window_end, bands, dispatch_records,
        missing_telemetry, missing_price, trailing, started_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    RETURNING finished_at;`
)

// batcher queues statements and flushes them in bounded round trips.
type batcher struct {
	tx    pgx.Tx
	size  int
	batch *pgx.Batch
}

func (b *batcher) queue(ctx context.Context, sql string, args ...any) error {
	if b.batch == nil {
		b.batch = &pgx.Batch{}
	}
	b.batch.Queue(sql, args...)
	if b.batch.Len() >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if b.batch == nil || b.batch.Len() == 0 {
		return nil
	}
	results := b.tx.SendBatch(ctx, b.batch)
	b.batch = nil
	return results.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(*batcher) error) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &batcher{tx: tx, size: s.batchSize}
	if err := fn(b); err != nil {
		return err
	}
	if err := b.flush(ctx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertUnits writes resolved unit metadata.
func (s *Store) UpsertUnits(ctx context.Context, metadata []units.Metadata) error {
	err := s.inTx(ctx, func(b *batcher) error {
		for _, m := range metadata {
			if err := b.queue(ctx, upsertUnitSQL, m.DUID, m.Region, m.FuelSource, m.DispatchType, m.Technology, m.UnitType, m.StationName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert units: %w", err)
	}
	return nil
}

// WriteDataset upserts one prepared window atomically. Re-running a window overwrites it.
func (s *Store) WriteDataset(ctx context.Context, data pipeline.Dataset) error {
	err := s.inTx(ctx, func(b *batcher) error {
		for _, bid := range data.Bids {
			if err := b.queue(ctx, upsertBidSQL, bid.Interval, bid.DUID, bid.Band, bid.Price, bid.Volume, bid.VolumeAdjusted); err != nil {
				return err
			}
		}
		for _, r := range data.Dispatch {
			if err := b.queue(ctx, upsertDispatchSQL, dispatchArgs(r)...); err != nil {
				return err
			}
		}
		for _, r := range data.Regions {
			if err := b.queue(ctx, upsertDemandSQL, r.Interval, r.Region, r.TotalDemand, r.RRP); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write dataset %s..%s: %w", data.Start.Format(time.RFC3339), data.End.Format(time.RFC3339), err)
	}
	return nil
}

func dispatchArgs(r market.DispatchRecord) []any {
	var availability any
	if r.Availability != nil {
		availability = *r.Availability
	}
	return []any{
		r.Interval,
		r.DUID,
		availability,
		r.TotalCleared,
		r.FinalMW,
		r.AsBidRampUpMaxAvail,
		r.AsBidRampDownMinAvail,
		r.RampUpMaxAvail,
		r.RampDownMinAvail,
		r.PASAAvailability,
		r.MaxAvail,
	}
}

// SyncPriceBins replaces the stored bin table with table.
func (s *Store) SyncPriceBins(ctx context.Context, table *pricebins.Table) error {
	err := s.inTx(ctx, func(b *batcher) error {
		if err := b.queue(ctx, deleteBinsSQL); err != nil {
			return err
		}
		for i, bin := range table.Bins() {
			if err := b.queue(ctx, insertBinSQL, bin.Name, bin.Lower, bin.Upper, bin.Closed, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync price bins: %w", err)
	}
	return nil
}

// RecordRun persists an ingest run and fills FinishedAt.
func (s *Store) RecordRun(ctx context.Context, run *IngestRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	row := pool.QueryRow(ctx, insertRunSQL,
		run.ID,
		run.WindowStart,
		run.WindowEnd,
		run.Bands,
		run.DispatchRecords,
		run.MissingTelemetry,
		run.MissingPrice,
		run.Trailing,
		run.StartedAt,
	)
	if err := row.Scan(&run.FinishedAt); err != nil {
		return fmt.Errorf("record ingest run: %w", err)
	}
	return nil
}
