package query

import (
	"context"
	"sort"
	"time"

	"bidstack/internal/pricebins"
)

// BinVolume is summed bid volume for one interval and price bin.
type BinVolume struct {
	Interval time.Time `json:"interval"`
	Bin      string    `json:"bin_name"`
	Volume   float64   `json:"volume"`
}

// UnitBid is one stored band of a unit's offer.
type UnitBid struct {
	Interval time.Time `json:"interval"`
	DUID     string    `json:"duid"`
	Band     int       `json:"bidband"`
	Volume   float64   `json:"bidvolume"`
	Price    float64   `json:"bidprice"`
}

// StationUnit pairs a unit with its station.
type StationUnit struct {
	DUID        string `json:"duid"`
	StationName string `json:"station_name"`
}

// WeightedPrice is the demand-weighted regional price of one interval.
type WeightedPrice struct {
	Interval time.Time `json:"interval"`
	Price    float64   `json:"weighted_price"`
}

// Demand is summed regional demand of one interval.
type Demand struct {
	Interval    time.Time `json:"interval"`
	TotalDemand float64   `json:"totaldemand"`
}

// Backend executes the query surface. Implementations return nil rows on any error.
type Backend interface {
	Name() string
	Bins() *pricebins.Table
	AggregateBids(ctx context.Context, q BidQuery) ([]BinVolume, error)
	AggregateDispatch(ctx context.Context, f Filter) ([]DispatchTotals, error)
	AggregateDispatchByUnits(ctx context.Context, q UnitQuery) ([]DispatchTotals, error)
	BidsByUnit(ctx context.Context, q UnitQuery) ([]UnitBid, error)
	DUIDsForStations(ctx context.Context, stations []string) ([]string, error)
	DUIDsAndStations(ctx context.Context, f Filter) ([]StationUnit, error)
	AggregatePrices(ctx context.Context, q PriceQuery) ([]WeightedPrice, error)
	RegionDemand(ctx context.Context, q PriceQuery) ([]Demand, error)
	DistinctTechTypes(ctx context.Context) ([]string, error)
}

// SortBinVolumes orders rows by interval then bin position in table.
func SortBinVolumes(rows []BinVolume, table *pricebins.Table) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Interval.Equal(rows[j].Interval) {
			return rows[i].Interval.Before(rows[j].Interval)
		}
		return table.Order(rows[i].Bin) < table.Order(rows[j].Bin)
	})
}

// WeightedMean returns sum(price*weight)/sum(weight); ok is false when the weight is zero.
func WeightedMean(weighted, weight float64) (float64, bool) {
	if weight == 0 {
		return 0, false
	}
	return weighted / weight, true
}
