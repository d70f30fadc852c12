package memtable

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bidstack/internal/bids"
	"bidstack/internal/market"
	"bidstack/internal/pipeline"
	"bidstack/internal/pricebins"
	"bidstack/internal/query"
	"bidstack/internal/units"
)

// Name identifies this backend in logs and divergence reports.
const Name = "memory"

// Table answers queries directly over records prepared from raw extracts.
// It is read-only after construction and safe for concurrent queries.
type Table struct {
	units    *units.Registry
	bins     *pricebins.Table
	bids     []market.BidBand
	dispatch []market.DispatchRecord
	regions  []market.RegionInterval
}

var _ query.Backend = (*Table)(nil)

// New wraps a prepared dataset.
func New(registry *units.Registry, bins *pricebins.Table, data pipeline.Dataset) *Table {
	return &Table{
		units:    registry,
		bins:     bins,
		bids:     data.Bids,
		dispatch: data.Dispatch,
		regions:  data.Regions,
	}
}

// Load prepares [start, end] from source and wraps the result.
func Load(source pipeline.Source, bins *pricebins.Table, start, end time.Time) (*Table, bids.Summary, error) {
	registry, err := pipeline.LoadUnits(source)
	if err != nil {
		return nil, bids.Summary{}, err
	}
	data, summary, err := pipeline.New(source, registry).Prepare(start, end)
	if err != nil {
		return nil, summary, err
	}
	return New(registry, bins, data), summary, nil
}

// done drops partial rows when the caller has gone away.
func done[T any](ctx context.Context, rows []T) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Name implements query.Backend.
func (t *Table) Name() string { return Name }

// Bins implements query.Backend.
func (t *Table) Bins() *pricebins.Table { return t.bins }

func (t *Table) unitMatches(p query.UnitPredicate, duid string) bool {
	m, ok := t.units.Lookup(duid)
	return ok && p.Match(m)
}

// AggregateBids sums the chosen volume basis per interval and price bin.
func (t *Table) AggregateBids(ctx context.Context, q query.BidQuery) ([]query.BinVolume, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	window, unitsPred := q.Window(), q.Units()

	type key struct {
		interval time.Time
		bin      string
	}
	sums := make(map[key]float64)
	for _, b := range t.bids {
		if !window.Match(b.Interval, b.OnHour) || !t.unitMatches(unitsPred, b.DUID) {
			continue
		}
		bin, err := t.bins.Classify(b.Price)
		if err != nil {
			return nil, fmt.Errorf("classify %s band %d: %w", b.DUID, b.Band, err)
		}
		sums[key{b.Interval, bin.Name}] += q.Basis.Value(b)
	}
	out := make([]query.BinVolume, 0, len(sums))
	for k, v := range sums {
		if v == 0 {
			continue
		}
		out = append(out, query.BinVolume{Interval: k.interval, Bin: k.bin, Volume: v})
	}
	query.SortBinVolumes(out, t.bins)
	return done(ctx, out)
}

func (t *Table) sumDispatch(keep func(market.DispatchRecord) bool) []query.DispatchTotals {
	totals := make(map[time.Time]*query.DispatchTotals)
	for _, r := range t.dispatch {
		if !keep(r) {
			continue
		}
		row, ok := totals[r.Interval]
		if !ok {
			row = &query.DispatchTotals{Interval: r.Interval}
			totals[r.Interval] = row
		}
		query.Accumulate(row, r)
	}
	out := make([]query.DispatchTotals, 0, len(totals))
	for _, row := range totals {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interval.Before(out[j].Interval) })
	return out
}

// AggregateDispatch sums clamped dispatch attributes per interval.
func (t *Table) AggregateDispatch(ctx context.Context, f query.Filter) ([]query.DispatchTotals, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	window, unitsPred := f.Window(), f.Units()
	out := t.sumDispatch(func(r market.DispatchRecord) bool {
		return window.Match(r.Interval, r.OnHour) && t.unitMatches(unitsPred, r.DUID)
	})
	return done(ctx, out)
}

// AggregateDispatchByUnits sums clamped dispatch attributes for explicit units.
func (t *Table) AggregateDispatchByUnits(ctx context.Context, q query.UnitQuery) ([]query.DispatchTotals, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	window, set := q.Window(), query.UnitSet(q.DUIDs)
	out := t.sumDispatch(func(r market.DispatchRecord) bool {
		return window.Match(r.Interval, r.OnHour) && set.Match(r.DUID)
	})
	return done(ctx, out)
}

// BidsByUnit lists stored bands of explicit units.
func (t *Table) BidsByUnit(ctx context.Context, q query.UnitQuery) ([]query.UnitBid, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	window, set := q.Window(), query.UnitSet(q.DUIDs)
	out := make([]query.UnitBid, 0)
	for _, b := range t.bids {
		if !window.Match(b.Interval, b.OnHour) || !set.Match(b.DUID) {
			continue
		}
		out = append(out, query.UnitBid{Interval: b.Interval, DUID: b.DUID, Band: b.Band, Volume: q.Basis.Value(b), Price: b.Price})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Interval.Equal(b.Interval) {
			return a.Interval.Before(b.Interval)
		}
		if a.DUID != b.DUID {
			return a.DUID < b.DUID
		}
		return a.Band < b.Band
	})
	return done(ctx, out)
}

// DUIDsForStations lists units belonging to the named stations.
func (t *Table) DUIDsForStations(ctx context.Context, stations []string) ([]string, error) {
	out := make([]string, 0)
	for _, m := range t.units.All() {
		if query.UnitSet(stations).Match(m.StationName) {
			out = append(out, m.DUID)
		}
	}
	return done(ctx, out)
}

// DUIDsAndStations lists units matching the filter that bid inside the window.
func (t *Table) DUIDsAndStations(ctx context.Context, f query.Filter) ([]query.StationUnit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	span, unitsPred := f.Span(), f.Units()
	bidding := make(map[string]struct{})
	for _, b := range t.bids {
		if span.Match(b.Interval, b.OnHour) {
			bidding[b.DUID] = struct{}{}
		}
	}
	out := make([]query.StationUnit, 0)
	for _, m := range t.units.All() {
		if _, ok := bidding[m.DUID]; !ok || !unitsPred.Match(m) {
			continue
		}
		out = append(out, query.StationUnit{DUID: m.DUID, StationName: m.StationName})
	}
	return done(ctx, out)
}

type regionSums struct {
	weighted float64
	demand   float64
}

func (t *Table) sumRegions(q query.PriceQuery) ([]time.Time, map[time.Time]*regionSums) {
	window, regions := q.Window(), query.RegionSet(q.Regions)
	sums := make(map[time.Time]*regionSums)
	var order []time.Time
	for _, r := range t.regions {
		if !window.Match(r.Interval, market.IsOnHour(r.Interval)) || !regions.Match(r.Region) {
			continue
		}
		s, ok := sums[r.Interval]
		if !ok {
			s = &regionSums{}
			sums[r.Interval] = s
			order = append(order, r.Interval)
		}
		s.weighted += r.RRP * r.TotalDemand
		s.demand += r.TotalDemand
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	return order, sums
}

// AggregatePrices returns the demand-weighted price per interval. Intervals with zero
// total demand have no defined price and are omitted.
func (t *Table) AggregatePrices(ctx context.Context, q query.PriceQuery) ([]query.WeightedPrice, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	order, sums := t.sumRegions(q)
	out := make([]query.WeightedPrice, 0, len(order))
	for _, interval := range order {
		s := sums[interval]
		if price, ok := query.WeightedMean(s.weighted, s.demand); ok {
			out = append(out, query.WeightedPrice{Interval: interval, Price: price})
		}
	}
	return done(ctx, out)
}

// RegionDemand returns summed demand per interval.
func (t *Table) RegionDemand(ctx context.Context, q query.PriceQuery) ([]query.Demand, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	order, sums := t.sumRegions(q)
	out := make([]query.Demand, 0, len(order))
	for _, interval := range order {
		out = append(out, query.Demand{Interval: interval, TotalDemand: sums[interval].demand})
	}
	return done(ctx, out)
}

// DistinctTechTypes lists every resolved unit type.
func (t *Table) DistinctTechTypes(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range t.units.All() {
		if _, ok := seen[m.UnitType]; ok {
			continue
		}
		seen[m.UnitType] = struct{}{}
		out = append(out, m.UnitType)
	}
	sort.Strings(out)
	return done(ctx, out)
}
