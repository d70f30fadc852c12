package memtable

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bidstack/internal/pipeline"
	"bidstack/internal/pricebins"
	"bidstack/internal/query"
	"bidstack/internal/units"
)

// Reader prepares the queried window from raw extracts on every call and answers it
// with a Table. The unit registry is resolved once.
type Reader struct {
	source   pipeline.Source
	bins     *pricebins.Table
	registry *units.Registry
	static   *Table
	logger   zerolog.Logger
}

var _ query.Backend = (*Reader)(nil)

// NewReader resolves the registration list of source.
func NewReader(source pipeline.Source, bins *pricebins.Table, logger zerolog.Logger) (*Reader, error) {
	registry, err := pipeline.LoadUnits(source)
	if err != nil {
		return nil, err
	}
	return &Reader{
		source:   source,
		bins:     bins,
		registry: registry,
		static:   New(registry, bins, pipeline.Dataset{}),
		logger:   logger.With().Str("component", "memtable").Logger(),
	}, nil
}

func (r *Reader) window(start, end time.Time) (*Table, error) {
	data, summary, err := pipeline.New(r.source, r.registry).Prepare(start, end)
	if err != nil {
		return nil, fmt.Errorf("prepare %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	if summary.MissingTelemetry > 0 || summary.MissingPrice > 0 {
		r.logger.Warn().
			Int("missing_telemetry", summary.MissingTelemetry).
			Int("missing_price", summary.MissingPrice).
			Time("start", start).
			Time("end", end).
			Msg("offers dropped while preparing window")
	}
	return New(r.registry, r.bins, data), nil
}

// Name implements query.Backend.
func (r *Reader) Name() string { return Name }

// Bins implements query.Backend.
func (r *Reader) Bins() *pricebins.Table { return r.bins }

// AggregateBids implements query.Backend.
func (r *Reader) AggregateBids(ctx context.Context, q query.BidQuery) ([]query.BinVolume, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	table, err := r.window(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return table.AggregateBids(ctx, q)
}

// AggregateDispatch implements query.Backend.
func (r *Reader) AggregateDispatch(ctx context.Context, f query.Filter) ([]query.DispatchTotals, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	table, err := r.window(f.Start, f.End)
	if err != nil {
		return nil, err
	}
	return table.AggregateDispatch(ctx, f)
}

// AggregateDispatchByUnits implements query.Backend.
func (r *Reader) AggregateDispatchByUnits(ctx context.Context, q query.UnitQuery) ([]query.DispatchTotals, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	table, err := r.window(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return table.AggregateDispatchByUnits(ctx, q)
}

// BidsByUnit implements query.Backend.
func (r *Reader) BidsByUnit(ctx context.Context, q query.UnitQuery) ([]query.UnitBid, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	table, err := r.window(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return table.BidsByUnit(ctx, q)
}

// DUIDsForStations implements query.Backend.
func (r *Reader) DUIDsForStations(ctx context.Context, stations []string) ([]string, error) {
	return r.static.DUIDsForStations(ctx, stations)
}

// DUIDsAndStations implements query.Backend.
func (r *Reader) DUIDsAndStations(ctx context.Context, f query.Filter) ([]query.StationUnit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	table, err := r.window(f.Start, f.End)
	if err != nil {
		return nil, err
	}
	return table.DUIDsAndStations(ctx, f)
}

// AggregatePrices implements query.Backend.
func (r *Reader) AggregatePrices(ctx context.Context, q query.PriceQuery) ([]query.WeightedPrice, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	table, err := r.window(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return table.AggregatePrices(ctx, q)
}

// RegionDemand implements query.Backend.
func (r *Reader) RegionDemand(ctx context.Context, q query.PriceQuery) ([]query.Demand, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	table, err := r.window(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return table.RegionDemand(ctx, q)
}

// DistinctTechTypes implements query.Backend.
func (r *Reader) DistinctTechTypes(ctx context.Context) ([]string, error) {
	return r.static.DistinctTechTypes(ctx)
}
