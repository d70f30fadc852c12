package market

import (
	"strings"
	"time"
)

// DispatchInterval is the length of one native market interval.
const DispatchInterval = 5 * time.Minute

// Dispatch types recognised in registration data.
const (
	Generator = "Generator"
	Load      = "Load"
)

// Regions lists the region codes accepted in filters.
var Regions = []string{"NSW", "QLD", "SA", "TAS", "VIC"}

// BidBand is one priced tranche of a unit's energy offer for an interval.
type BidBand struct {
	Interval       time.Time
	DUID           string
	Band           int
	Price          float64
	Volume         float64
	VolumeAdjusted float64
	OnHour         bool
}

// DispatchRecord captures per-interval dispatch telemetry for a unit.
// Availability is nil when upstream did not report a usable value.
type DispatchRecord struct {
	Interval              time.Time
	DUID                  string
	Availability          *float64
	TotalCleared          float64
	FinalMW               float64
	AsBidRampUpMaxAvail   float64
	AsBidRampDownMinAvail float64
	RampUpMaxAvail        float64
	RampDownMinAvail      float64
	PASAAvailability      float64
	MaxAvail              float64
	OnHour                bool
}

// RegionInterval is regional demand and price for one settlement interval.
type RegionInterval struct {
	Interval    time.Time
	Region      string
	TotalDemand float64
	RRP         float64
}

// IntervalKey identifies a unit's interval.
type IntervalKey struct {
	Interval time.Time
	DUID     string
}

// IsOnHour reports whether an interval ends exactly on the hour.
func IsOnHour(t time.Time) bool {
	return t.Truncate(time.Hour).Equal(t)
}

// NormalizeRegion strips the trailing region number used upstream (NSW1 -> NSW).
func NormalizeRegion(region string) string {
	region = strings.TrimSpace(region)
	if strings.HasSuffix(region, "1") {
		return region[:len(region)-1]
	}
	return region
}

// KnownRegion reports whether region is a valid filter token.
func KnownRegion(region string) bool {
	for _, r := range Regions {
		if r == region {
			return true
		}
	}
	return false
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
