package bids

import (
	"sort"

	"bidstack/internal/market"
)

// Intervals per hour at native resolution; as-bid ramp rates are MW per minute,
// effective ramp rates are MW per hour.
const (
	minutesPerInterval = 5
	intervalsPerHour   = 12
)

// BuildDispatch derives DispatchRecords by joining energy volume offers with telemetry.
// FINALMW is the unit's initial MW in the following interval, so the last interval of a
// unit in the batch has no record and is counted as trailing.
func (n Normalizer) BuildDispatch(volumes []VolumeOffer, telemetry []Telemetry) ([]market.DispatchRecord, Summary) {
	var summary Summary
	runs := latestRuns(telemetry)

	out := make([]market.DispatchRecord, 0, len(volumes))
	for _, v := range volumes {
		if !isEnergy(v.BidType) {
			continue
		}
		t, ok := runs[v.key()]
		if !ok {
			continue
		}
		next, ok := runs[market.IntervalKey{Interval: v.Interval.Add(market.DispatchInterval), DUID: v.DUID}]
		if !ok {
			summary.TrailingIntervals++
			continue
		}

		variable := n.Variable != nil && n.Variable(v.DUID)
		rec := market.DispatchRecord{
			Interval:              v.Interval,
			DUID:                  v.DUID,
			Availability:          Availability(t.Availability, v.MaxAvail, t.Forecast, variable),
			TotalCleared:          t.TotalCleared,
			FinalMW:               next.InitialMW,
			AsBidRampUpMaxAvail:   t.InitialMW + v.ROCUp*minutesPerInterval,
			AsBidRampDownMinAvail: t.InitialMW - v.ROCDown*minutesPerInterval,
			RampUpMaxAvail:        t.InitialMW + t.RampUpRate/intervalsPerHour,
			RampDownMinAvail:      t.InitialMW - t.RampDownRate/intervalsPerHour,
			PASAAvailability:      v.PASAAvailability,
			OnHour:                market.IsOnHour(v.Interval),
		}
		if v.MaxAvail != nil {
			rec.MaxAvail = *v.MaxAvail
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Interval.Equal(out[j].Interval) {
			return out[i].Interval.Before(out[j].Interval)
		}
		return out[i].DUID < out[j].DUID
	})
	summary.DispatchRecords = len(out)
	return out, summary
}
