package query

import (
	"fmt"
	"strings"
	"time"

	"bidstack/internal/market"
)

// Resolution selects which native intervals take part in a query.
type Resolution string

const (
	// Native keeps every dispatch interval.
	Native Resolution = "native"
	// Hourly keeps only intervals ending on the hour.
	Hourly Resolution = "hourly"
)

// ParseResolution accepts "native", "hourly" and the "5-min" alias. Empty means native.
func ParseResolution(v string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", string(Native), "5-min", "5min":
		return Native, nil
	case string(Hourly):
		return Hourly, nil
	default:
		return "", &InvalidFilterError{Field: "resolution", Value: v}
	}
}

// canonical folds accepted spellings onto the constants. Unknown tokens are
// returned unchanged and rejected by Validate.
func (r Resolution) canonical() Resolution {
	if parsed, err := ParseResolution(string(r)); err == nil {
		return parsed
	}
	return r
}

// VolumeBasis selects raw or availability-adjusted bid volume.
type VolumeBasis string

const (
	Raw      VolumeBasis = "raw"
	Adjusted VolumeBasis = "adjusted"
)

// ParseVolumeBasis accepts "raw" or "adjusted". Empty means adjusted.
func ParseVolumeBasis(v string) (VolumeBasis, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", string(Adjusted):
		return Adjusted, nil
	case string(Raw):
		return Raw, nil
	default:
		return "", &InvalidFilterError{Field: "volume_basis", Value: v}
	}
}

func (v VolumeBasis) canonical() VolumeBasis {
	if parsed, err := ParseVolumeBasis(string(v)); err == nil {
		return parsed
	}
	return v
}

// Column is the bidding_data column holding this basis.
func (v VolumeBasis) Column() string {
	if v.canonical() == Raw {
		return "bidvolume"
	}
	return "bidvolumeadjusted"
}

// Value picks this basis from a band.
func (v VolumeBasis) Value(b market.BidBand) float64 {
	if v.canonical() == Raw {
		return b.Volume
	}
	return b.VolumeAdjusted
}

// InvalidFilterError rejects a filter before any backend is touched.
type InvalidFilterError struct {
	Field string
	Value string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter %s: %q", e.Field, e.Value)
}

// Filter is the shared selection over unit metadata and time.
// Empty Regions, TechTypes and DispatchType apply no restriction.
type Filter struct {
	Regions      []string   `json:"regions"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	Resolution   Resolution `json:"resolution"`
	DispatchType string     `json:"dispatch_type"`
	TechTypes    []string   `json:"tech_types"`
}

// Validate checks tokens and window ordering.
func (f Filter) Validate() error {
	if err := validateRegions(f.Regions); err != nil {
		return err
	}
	if _, err := ParseResolution(string(f.Resolution)); err != nil {
		return err
	}
	switch f.DispatchType {
	case "", market.Generator, market.Load:
	default:
		return &InvalidFilterError{Field: "dispatch_type", Value: f.DispatchType}
	}
	return validateWindow(f.Start, f.End)
}

// Units returns the metadata predicate part of the filter.
func (f Filter) Units() UnitPredicate {
	return UnitPredicate{Regions: f.Regions, DispatchType: f.DispatchType, TechTypes: f.TechTypes}
}

// Window returns the time predicate part of the filter.
func (f Filter) Window() IntervalPredicate {
	return IntervalPredicate{Start: f.Start, End: f.End, Resolution: f.Resolution.canonical()}
}

// Span is the window without resolution thinning, used by unit listings.
func (f Filter) Span() IntervalPredicate {
	return IntervalPredicate{Start: f.Start, End: f.End, Resolution: Native}
}

// BidQuery aggregates bid volume into price bins.
type BidQuery struct {
	Filter
	Basis VolumeBasis `json:"volume_basis"`
}

// Validate checks the filter and the volume basis.
func (q BidQuery) Validate() error {
	if err := q.Filter.Validate(); err != nil {
		return err
	}
	_, err := ParseVolumeBasis(string(q.Basis))
	return err
}

// UnitQuery selects explicit units instead of metadata filters.
type UnitQuery struct {
	DUIDs      []string    `json:"duids"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Resolution Resolution  `json:"resolution"`
	Basis      VolumeBasis `json:"volume_basis"`
}

// Validate checks tokens and window ordering.
func (q UnitQuery) Validate() error {
	if _, err := ParseResolution(string(q.Resolution)); err != nil {
		return err
	}
	if _, err := ParseVolumeBasis(string(q.Basis)); err != nil {
		return err
	}
	return validateWindow(q.Start, q.End)
}

// Window returns the time predicate of the query.
func (q UnitQuery) Window() IntervalPredicate {
	return IntervalPredicate{Start: q.Start, End: q.End, Resolution: q.Resolution.canonical()}
}

// PriceQuery selects regional demand and price records.
type PriceQuery struct {
	Regions []string  `json:"regions"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Validate checks regions and window ordering.
func (q PriceQuery) Validate() error {
	if err := validateRegions(q.Regions); err != nil {
		return err
	}
	return validateWindow(q.Start, q.End)
}

// Window returns the time predicate of the query; every interval is kept.
func (q PriceQuery) Window() IntervalPredicate {
	return IntervalPredicate{Start: q.Start, End: q.End, Resolution: Native}
}

func validateRegions(regions []string) error {
	for _, r := range regions {
		if !market.KnownRegion(r) {
			return &InvalidFilterError{Field: "regions", Value: r}
		}
	}
	return nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() {
		return &InvalidFilterError{Field: "start", Value: ""}
	}
	if end.IsZero() {
		return &InvalidFilterError{Field: "end", Value: ""}
	}
	if end.Before(start) {
		return &InvalidFilterError{Field: "end", Value: end.Format(time.RFC3339)}
	}
	return nil
}
