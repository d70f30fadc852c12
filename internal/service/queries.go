package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"bidstack/internal/query"
)

// Queries routes query-surface calls to a named backend and logs each call.
type Queries struct {
	backends map[string]query.Backend
	fallback string
	logger   zerolog.Logger
}

// NewQueries registers backends by name. fallback serves calls that name no backend.
func NewQueries(fallback string, logger zerolog.Logger, backends ...query.Backend) (*Queries, error) {
	s := &Queries{
		backends: make(map[string]query.Backend, len(backends)),
		fallback: fallback,
		logger:   logger.With().Str("component", "queries").Logger(),
	}
	for _, b := range backends {
		s.backends[b.Name()] = b
	}
	if _, ok := s.backends[fallback]; !ok {
		return nil, fmt.Errorf("default backend %q not configured", fallback)
	}
	return s, nil
}

// Names lists the registered backends.
func (s *Queries) Names() []string {
	out := make([]string, 0, len(s.backends))
	for name := range s.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Backend resolves name, empty meaning the default.
func (s *Queries) Backend(name string) (query.Backend, error) {
	if name == "" {
		name = s.fallback
	}
	b, ok := s.backends[name]
	if !ok {
		return nil, &query.InvalidFilterError{Field: "backend", Value: name}
	}
	return b, nil
}

func observe[T any](s *Queries, backend, op string, run func(query.Backend) ([]T, error)) ([]T, error) {
	b, err := s.Backend(backend)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	rows, err := run(b)
	if err != nil {
		s.logger.Warn().Err(err).Str("backend", b.Name()).Str("op", op).Msg("query failed")
		return nil, err
	}
	s.logger.Debug().
		Str("backend", b.Name()).
		Str("op", op).
		Int("rows", len(rows)).
		Dur("elapsed", time.Since(started)).
		Msg("query served")
	return rows, nil
}

// AggregateBids sums bid volume per interval and price bin.
func (s *Queries) AggregateBids(ctx context.Context, backend string, q query.BidQuery) ([]query.BinVolume, error) {
	return observe(s, backend, "aggregate_bids", func(b query.Backend) ([]query.BinVolume, error) {
		return b.AggregateBids(ctx, q)
	})
}

// AggregateDispatch sums clamped dispatch attributes per interval.
func (s *Queries) AggregateDispatch(ctx context.Context, backend string, f query.Filter) ([]query.DispatchTotals, error) {
	return observe(s, backend, "aggregate_dispatch", func(b query.Backend) ([]query.DispatchTotals, error) {
		return b.AggregateDispatch(ctx, f)
	})
}

// AggregateDispatchByUnits sums clamped dispatch attributes of explicit units.
func (s *Queries) AggregateDispatchByUnits(ctx context.Context, backend string, q query.UnitQuery) ([]query.DispatchTotals, error) {
	return observe(s, backend, "aggregate_dispatch_by_units", func(b query.Backend) ([]query.DispatchTotals, error) {
		return b.AggregateDispatchByUnits(ctx, q)
	})
}

// BidsByUnit lists the bands of explicit units.
func (s *Queries) BidsByUnit(ctx context.Context, backend string, q query.UnitQuery) ([]query.UnitBid, error) {
	return observe(s, backend, "bids_by_unit", func(b query.Backend) ([]query.UnitBid, error) {
		return b.BidsByUnit(ctx, q)
	})
}

// DUIDsForStations lists units of the named stations.
func (s *Queries) DUIDsForStations(ctx context.Context, backend string, stations []string) ([]string, error) {
	return observe(s, backend, "duids_for_stations", func(b query.Backend) ([]string, error) {
		return b.DUIDsForStations(ctx, stations)
	})
}

// DUIDsAndStations lists (unit, station) pairs matching f.
func (s *Queries) DUIDsAndStations(ctx context.Context, backend string, f query.Filter) ([]query.StationUnit, error) {
	return observe(s, backend, "duids_and_stations", func(b query.Backend) ([]query.StationUnit, error) {
		return b.DUIDsAndStations(ctx, f)
	})
}

// AggregatePrices returns demand-weighted prices per interval.
func (s *Queries) AggregatePrices(ctx context.Context, backend string, q query.PriceQuery) ([]query.WeightedPrice, error) {
	return observe(s, backend, "aggregate_prices", func(b query.Backend) ([]query.WeightedPrice, error) {
		return b.AggregatePrices(ctx, q)
	})
}

// RegionDemand returns summed demand per interval.
func (s *Queries) RegionDemand(ctx context.Context, backend string, q query.PriceQuery) ([]query.Demand, error) {
	return observe(s, backend, "region_demand", func(b query.Backend) ([]query.Demand, error) {
		return b.RegionDemand(ctx, q)
	})
}

// DistinctTechTypes lists resolved unit types.
func (s *Queries) DistinctTechTypes(ctx context.Context, backend string) ([]string, error) {
	return observe(s, backend, "distinct_tech_types", func(b query.Backend) ([]string, error) {
		return b.DistinctTechTypes(ctx)
	})
}
