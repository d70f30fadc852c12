package bids

import (
	"time"

	"bidstack/internal/market"
)

// Bands is the number of price/volume pairs in an offer.
const Bands = 10

// EnergyBid is the only bid type normalised; ancillary service offers are ignored.
const EnergyBid = "ENERGY"

// PriceOffer holds a unit's band prices for one trading day.
type PriceOffer struct {
	TradingDay time.Time
	DUID       string
	BidType    string
	Prices     [Bands]float64
}

// VolumeOffer holds a unit's band volumes and as-bid limits for one interval.
type VolumeOffer struct {
	Interval         time.Time
	TradingDay       time.Time
	DUID             string
	BidType          string
	Volumes          [Bands]float64
	MaxAvail         *float64
	ROCUp            float64
	ROCDown          float64
	PASAAvailability float64
}

// Telemetry is a unit's dispatch outcome for one interval.
type Telemetry struct {
	Interval     time.Time
	DUID         string
	Intervention int
	Availability *float64
	Forecast     *float64
	TotalCleared float64
	InitialMW    float64
	RampUpRate   float64
	RampDownRate float64
}

func (v VolumeOffer) key() market.IntervalKey {
	return market.IntervalKey{Interval: v.Interval, DUID: v.DUID}
}

func (t Telemetry) key() market.IntervalKey {
	return market.IntervalKey{Interval: t.Interval, DUID: t.DUID}
}

func isEnergy(bidType string) bool {
	return bidType == "" || bidType == EnergyBid
}

// Availability resolves the adjustment cap for a unit interval. A reported value wins;
// otherwise the as-bid availability, lowered to the resource forecast for variable units.
// nil means no cap is known.
func Availability(reported, asBid, forecast *float64, variable bool) *float64 {
	if reported != nil {
		return market.Float(*reported)
	}
	if asBid == nil {
		return nil
	}
	v := *asBid
	if variable && forecast != nil && *forecast < v {
		v = *forecast
	}
	return &v
}

// latestRuns keeps one telemetry row per unit interval, preferring the intervention run.
func latestRuns(rows []Telemetry) map[market.IntervalKey]Telemetry {
	out := make(map[market.IntervalKey]Telemetry, len(rows))
	for _, row := range rows {
		k := row.key()
		if prev, ok := out[k]; ok && prev.Intervention > row.Intervention {
			continue
		}
		out[k] = row
	}
	return out
}
