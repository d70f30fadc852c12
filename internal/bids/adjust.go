package bids

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"bidstack/internal/market"
)

// Adjust caps one unit interval's bands at availability, removing the excess from the
// most expensive band first. A nil availability means no cap; availability <= 0 zeroes
// every band. The input slice is not modified.
func Adjust(bands []market.BidBand, availability *float64) []market.BidBand {
	out := make([]market.BidBand, len(bands))
	copy(out, bands)
	for i := range out {
		out[i].VolumeAdjusted = out[i].Volume
	}

	if availability == nil || math.IsNaN(*availability) {
		return out
	}
	if *availability <= 0 {
		for i := range out {
			out[i].VolumeAdjusted = 0
		}
		return out
	}

	total := decimal.Zero
	for _, b := range out {
		total = total.Add(decimal.NewFromFloat(b.Volume))
	}
	excess := total.Sub(decimal.NewFromFloat(*availability))
	if !excess.IsPositive() {
		return out
	}

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := out[order[i]], out[order[j]]
		if a.Price != b.Price {
			return a.Price > b.Price
		}
		return a.Band > b.Band
	})

	for _, idx := range order {
		if !excess.IsPositive() {
			break
		}
		volume := decimal.NewFromFloat(out[idx].Volume)
		cut := decimal.Min(volume, excess)
		out[idx].VolumeAdjusted = volume.Sub(cut).InexactFloat64()
		excess = excess.Sub(cut)
	}
	return out
}

// AdjustAll applies Adjust to every unit interval in bands.
func AdjustAll(bands []market.BidBand, availability map[market.IntervalKey]*float64) []market.BidBand {
	groups := make(map[market.IntervalKey][]market.BidBand)
	keys := make([]market.IntervalKey, 0)
	for _, b := range bands {
		k := market.IntervalKey{Interval: b.Interval, DUID: b.DUID}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], b)
	}

	out := make([]market.BidBand, 0, len(bands))
	for _, k := range keys {
		out = append(out, Adjust(groups[k], availability[k])...)
	}
	SortBands(out)
	return out
}
