package bids

import (
	"sort"
	"time"

	"bidstack/internal/market"
)

// Normalizer stacks raw offers into one BidBand per unit interval band.
type Normalizer struct {
	// Variable reports whether a unit's availability follows a resource forecast.
	Variable func(duid string) bool
}

// Normalized is the output of a normalisation batch.
type Normalized struct {
	Bands        []market.BidBand
	Availability map[market.IntervalKey]*float64
}

type priceKey struct {
	day  time.Time
	duid string
}

// Normalize joins volume offers with their day's prices and the interval's telemetry.
// Zero-volume bands are discarded. Offers without telemetry are dropped and counted.
func (n Normalizer) Normalize(prices []PriceOffer, volumes []VolumeOffer, telemetry []Telemetry) (Normalized, Summary) {
	var summary Summary

	priceIndex := make(map[priceKey]PriceOffer, len(prices))
	for _, p := range prices {
		if !isEnergy(p.BidType) {
			continue
		}
		priceIndex[priceKey{day: p.TradingDay, duid: p.DUID}] = p
	}
	runs := latestRuns(telemetry)

	out := Normalized{Availability: make(map[market.IntervalKey]*float64)}
	for _, v := range volumes {
		if !isEnergy(v.BidType) {
			continue
		}
		summary.VolumeOffers++

		p, ok := priceIndex[priceKey{day: v.TradingDay, duid: v.DUID}]
		if !ok {
			summary.MissingPrice++
			continue
		}
		t, ok := runs[v.key()]
		if !ok {
			summary.MissingTelemetry++
			summary.record(&MissingTelemetryError{Interval: v.Interval, DUID: v.DUID})
			continue
		}

		variable := n.Variable != nil && n.Variable(v.DUID)
		out.Availability[v.key()] = Availability(t.Availability, v.MaxAvail, t.Forecast, variable)

		onHour := market.IsOnHour(v.Interval)
		for i := 0; i < Bands; i++ {
			if !(v.Volumes[i] > 0) {
				summary.ZeroVolumeBands++
				continue
			}
			out.Bands = append(out.Bands, market.BidBand{
				Interval: v.Interval,
				DUID:     v.DUID,
				Band:     i + 1,
				Price:    p.Prices[i],
				Volume:   v.Volumes[i],
				OnHour:   onHour,
			})
		}
	}

	SortBands(out.Bands)
	summary.Bands = len(out.Bands)
	return out, summary
}

// SortBands orders bands by interval, unit, then band index.
func SortBands(bands []market.BidBand) {
	sort.Slice(bands, func(i, j int) bool {
		a, b := bands[i], bands[j]
		if !a.Interval.Equal(b.Interval) {
			return a.Interval.Before(b.Interval)
		}
		if a.DUID != b.DUID {
			return a.DUID < b.DUID
		}
		return a.Band < b.Band
	})
}
