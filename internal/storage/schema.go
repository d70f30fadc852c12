package storage

import (
	"context"
	"fmt"
)

// Values are float8 so stored sums match in-memory float64 arithmetic.
var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS duid_info (
        duid          text PRIMARY KEY,
        region        text NOT NULL,
        fuel_source   text NOT NULL,
        dispatch_type text NOT NULL,
        technology    text NOT NULL,
        unit_type     text NOT NULL,
        station_name  text NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS bidding_data (
        interval_datetime timestamp NOT NULL,
        duid              text NOT NULL,
        bidband           integer NOT NULL,
        bidprice          float8 NOT NULL,
        bidvolume         float8 NOT NULL,
        bidvolumeadjusted float8 NOT NULL,
        PRIMARY KEY (interval_datetime, duid, bidband)
    );`,
	`CREATE INDEX IF NOT EXISTS bidding_data_duid_idx ON bidding_data (duid, interval_datetime);`,
	`CREATE TABLE IF NOT EXISTS unit_dispatch (
        interval_datetime     timestamp NOT NULL,
        duid                  text NOT NULL,
        availability          float8,
        totalcleared          float8 NOT NULL,
        finalmw               float8 NOT NULL,
        asbidrampupmaxavail   float8 NOT NULL,
        asbidrampdownminavail float8 NOT NULL,
        rampupmaxavail        float8 NOT NULL,
        rampdownminavail      float8 NOT NULL,
        pasaavailability      float8 NOT NULL,
        maxavail              float8 NOT NULL,
        PRIMARY KEY (interval_datetime, duid)
    );`,
	`CREATE TABLE IF NOT EXISTS demand_data (
        settlementdate timestamp NOT NULL,
        regionid       text NOT NULL,
        totaldemand    float8 NOT NULL,
        rrp            float8 NOT NULL,
        PRIMARY KEY (settlementdate, regionid)
    );`,
	`CREATE TABLE IF NOT EXISTS price_bins (
        bin_name   text PRIMARY KEY,
        lower_edge float8 NOT NULL,
        upper_edge float8 NOT NULL,
        closed     boolean NOT NULL,
        position   integer NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
        id                uuid PRIMARY KEY,
        window_start      timestamp NOT NULL,
        window_end        timestamp NOT NULL,
        bands             integer NOT NULL,
        dispatch_records  integer NOT NULL,
        missing_telemetry integer NOT NULL,
        missing_price     integer NOT NULL,
        trailing          integer NOT NULL,
        started_at        timestamptz NOT NULL,
        finished_at       timestamptz NOT NULL DEFAULT now()
    );`,
}

// EnsureSchema creates any missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaSQL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
