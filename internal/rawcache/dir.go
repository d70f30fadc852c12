package rawcache

import (
	"fmt"
	"time"

	"bidstack/internal/bids"
	"bidstack/internal/market"
	"bidstack/internal/units"
)

// File name patterns for each cached upstream table. Monthly splits such as
// BIDPEROFFER_D_202201.csv are read together.
const (
	PriceOfferFiles   = "BIDDAYOFFER_D*.csv"
	VolumeOfferFiles  = "BIDPEROFFER_D*.csv"
	TelemetryFiles    = "DISPATCHLOAD*.csv"
	RegionFiles       = "DISPATCHREGIONSUM*.csv"
	RegistrationFiles = "REGISTRATION*.csv"
)

// Dir reads raw extracts cached as CSV files in a single directory.
type Dir struct {
	Root string
}

// New returns a reader rooted at path.
func New(path string) Dir {
	return Dir{Root: path}
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// PriceOffers returns daily price bands for trading days overlapping [start, end].
func (d Dir) PriceOffers(start, end time.Time) ([]bids.PriceOffer, error) {
	from := start.Truncate(24*time.Hour).AddDate(0, 0, -1)
	to := end.AddDate(0, 0, 1)

	var out []bids.PriceOffer
	err := readTable(d.Root, PriceOfferFiles, func(r record) error {
		tradingDay, err := r.time("SETTLEMENTDATE")
		if err != nil {
			return err
		}
		if !within(tradingDay, from, to) {
			return nil
		}
		offer := bids.PriceOffer{TradingDay: tradingDay, DUID: r.str("DUID"), BidType: r.str("BIDTYPE")}
		for i := 0; i < bids.Bands; i++ {
			if offer.Prices[i], err = r.float(fmt.Sprintf("PRICEBAND%d", i+1)); err != nil {
				return err
			}
		}
		out = append(out, offer)
		return nil
	})
	return out, err
}

// VolumeOffers returns per-interval volume bands with interval in [start, end].
func (d Dir) VolumeOffers(start, end time.Time) ([]bids.VolumeOffer, error) {
	var out []bids.VolumeOffer
	err := readTable(d.Root, VolumeOfferFiles, func(r record) error {
		interval, err := r.time("INTERVAL_DATETIME")
		if err != nil {
			return err
		}
		if !within(interval, start, end) {
			return nil
		}
		offer := bids.VolumeOffer{Interval: interval, DUID: r.str("DUID"), BidType: r.str("BIDTYPE")}
		if offer.TradingDay, err = r.time("SETTLEMENTDATE"); err != nil {
			return err
		}
		for i := 0; i < bids.Bands; i++ {
			if offer.Volumes[i], err = r.float(fmt.Sprintf("BANDAVAIL%d", i+1)); err != nil {
				return err
			}
		}
		if offer.MaxAvail, err = r.optFloat("MAXAVAIL"); err != nil {
			return err
		}
		if offer.ROCUp, err = r.float("ROCUP"); err != nil {
			return err
		}
		if offer.ROCDown, err = r.float("ROCDOWN"); err != nil {
			return err
		}
		if offer.PASAAvailability, err = r.float("PASAAVAILABILITY"); err != nil {
			return err
		}
		out = append(out, offer)
		return nil
	})
	return out, err
}

// Telemetry returns dispatch rows with settlement date in [start, end].
func (d Dir) Telemetry(start, end time.Time) ([]bids.Telemetry, error) {
	var out []bids.Telemetry
	err := readTable(d.Root, TelemetryFiles, func(r record) error {
		interval, err := r.time("SETTLEMENTDATE")
		if err != nil {
			return err
		}
		if !within(interval, start, end) {
			return nil
		}
		row := bids.Telemetry{Interval: interval, DUID: r.str("DUID")}
		if row.Intervention, err = r.int("INTERVENTION"); err != nil {
			return err
		}
		if row.Availability, err = r.optFloat("AVAILABILITY"); err != nil {
			return err
		}
		if row.Forecast, err = r.optFloat("UIGF"); err != nil {
			return err
		}
		if row.TotalCleared, err = r.float("TOTALCLEARED"); err != nil {
			return err
		}
		if row.InitialMW, err = r.float("INITIALMW"); err != nil {
			return err
		}
		if row.RampUpRate, err = r.float("RAMPUPRATE"); err != nil {
			return err
		}
		if row.RampDownRate, err = r.float("RAMPDOWNRATE"); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// RegionIntervals returns regional demand and price with settlement date in [start, end].
// Only the physical run (INTERVENTION 0) is kept; a file without the column is all physical.
func (d Dir) RegionIntervals(start, end time.Time) ([]market.RegionInterval, error) {
	var out []market.RegionInterval
	err := readTable(d.Root, RegionFiles, func(r record) error {
		interval, err := r.time("SETTLEMENTDATE")
		if err != nil {
			return err
		}
		if !within(interval, start, end) {
			return nil
		}
		// Intervention pricing runs are published alongside the physical run.
		run, err := r.int("INTERVENTION")
		if err != nil {
			return err
		}
		if run != 0 {
			return nil
		}
		row := market.RegionInterval{Interval: interval, Region: market.NormalizeRegion(r.str("REGIONID"))}
		if row.TotalDemand, err = r.float("TOTALDEMAND"); err != nil {
			return err
		}
		if row.RRP, err = r.float("RRP"); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// Registration returns the raw unit registration list.
func (d Dir) Registration() ([]units.Row, error) {
	var out []units.Row
	err := readTable(d.Root, RegistrationFiles, func(r record) error {
		out = append(out, units.Row{
			DUID:         r.str("DUID"),
			Region:       r.str("REGION"),
			FuelSource:   r.str("FUEL SOURCE - DESCRIPTOR"),
			DispatchType: r.str("DISPATCH TYPE"),
			Technology:   r.str("TECHNOLOGY TYPE - DESCRIPTOR"),
			StationName:  r.str("STATION NAME"),
		})
		return nil
	})
	return out, err
}
