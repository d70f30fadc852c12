package pipeline

import (
	"fmt"
	"time"

	"bidstack/internal/bids"
	"bidstack/internal/market"
	"bidstack/internal/units"
)

// Source supplies raw extracts for a time window.
type Source interface {
	PriceOffers(start, end time.Time) ([]bids.PriceOffer, error)
	VolumeOffers(start, end time.Time) ([]bids.VolumeOffer, error)
	Telemetry(start, end time.Time) ([]bids.Telemetry, error)
	RegionIntervals(start, end time.Time) ([]market.RegionInterval, error)
	Registration() ([]units.Row, error)
}

// Dataset is the normalised record set for one window.
type Dataset struct {
	Start    time.Time
	End      time.Time
	Bids     []market.BidBand
	Dispatch []market.DispatchRecord
	Regions  []market.RegionInterval
}

// Preparer turns raw extracts into normalised, availability-adjusted records.
type Preparer struct {
	source Source
	units  *units.Registry
}

// LoadUnits reads and resolves the registration list.
func LoadUnits(source Source) (*units.Registry, error) {
	rows, err := source.Registration()
	if err != nil {
		return nil, fmt.Errorf("read registration: %w", err)
	}
	return units.NewRegistry(rows), nil
}

// New builds a Preparer over source with an already-resolved unit registry.
func New(source Source, registry *units.Registry) *Preparer {
	return &Preparer{source: source, units: registry}
}

// Units returns the registry used for availability rules.
func (p *Preparer) Units() *units.Registry {
	return p.units
}

func (p *Preparer) variable(duid string) bool {
	m, ok := p.units.Lookup(duid)
	return ok && units.IsVariable(m.UnitType)
}

// Prepare builds the record set for intervals in [start, end]. The window must not split
// an interval; telemetry one interval past end is read so the final interval has FINALMW.
func (p *Preparer) Prepare(start, end time.Time) (Dataset, bids.Summary, error) {
	var summary bids.Summary

	prices, err := p.source.PriceOffers(start, end)
	if err != nil {
		return Dataset{}, summary, fmt.Errorf("read price offers: %w", err)
	}
	volumes, err := p.source.VolumeOffers(start, end)
	if err != nil {
		return Dataset{}, summary, fmt.Errorf("read volume offers: %w", err)
	}
	telemetry, err := p.source.Telemetry(start, end.Add(market.DispatchInterval))
	if err != nil {
		return Dataset{}, summary, fmt.Errorf("read dispatch telemetry: %w", err)
	}
	regions, err := p.source.RegionIntervals(start, end)
	if err != nil {
		return Dataset{}, summary, fmt.Errorf("read region intervals: %w", err)
	}

	normalizer := bids.Normalizer{Variable: p.variable}
	normalized, bidSummary := normalizer.Normalize(prices, volumes, telemetry)
	dispatch, dispatchSummary := normalizer.BuildDispatch(volumes, telemetry)
	summary.Merge(bidSummary)
	summary.Merge(dispatchSummary)

	return Dataset{
		Start:    start,
		End:      end,
		Bids:     bids.AdjustAll(normalized.Bands, normalized.Availability),
		Dispatch: dispatch,
		Regions:  regions,
	}, summary, nil
}

// Period is a calendar chunk size for long backfills.
type Period string

const (
	Month Period = "month"
	Day   Period = "day"
)

func (p Period) next(t time.Time) time.Time {
	if p == Day {
		return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
	}
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}

// Chunks splits [start, end] at calendar boundaries. Each chunk ends one native
// interval before the next begins so no interval is shared.
func Chunks(start, end time.Time, period Period) [][2]time.Time {
	var out [][2]time.Time
	cursor := start
	for !cursor.After(end) {
		chunkEnd := period.next(cursor).Add(-market.DispatchInterval)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		if chunkEnd.Before(cursor) {
			chunkEnd = cursor
		}
		out = append(out, [2]time.Time{cursor, chunkEnd})
		cursor = chunkEnd.Add(market.DispatchInterval)
	}
	return out
}
