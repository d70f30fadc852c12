package query

import (
	"fmt"
	"math"
	"time"

	"bidstack/internal/market"
)

// Clamp bounds one dispatch value before it is summed. Either Bound names the column the
// value is capped at, or Floor holds it at zero or above. A missing bound leaves the
// value uncapped, matching LEAST's treatment of NULL.
type Clamp struct {
	Bound string
	Floor bool
}

// Apply clamps v against bound.
func (c Clamp) Apply(v float64, bound *float64) float64 {
	if c.Floor {
		return math.Max(v, 0)
	}
	if bound == nil {
		return v
	}
	return math.Min(v, *bound)
}

// SQL lowers the clamp around expr; alias qualifies the bound column.
func (c Clamp) SQL(expr, alias string) string {
	if c.Floor {
		return fmt.Sprintf("GREATEST(%s, 0)", expr)
	}
	return fmt.Sprintf("LEAST(%s, %s.%s)", expr, alias, c.Bound)
}

// DispatchTotals is one interval of summed dispatch attributes.
type DispatchTotals struct {
	Interval              time.Time `json:"interval"`
	Availability          float64   `json:"availability"`
	TotalCleared          float64   `json:"totalcleared"`
	FinalMW               float64   `json:"finalmw"`
	AsBidRampUpMaxAvail   float64   `json:"asbidrampupmaxavail"`
	AsBidRampDownMinAvail float64   `json:"asbidrampdownminavail"`
	RampUpMaxAvail        float64   `json:"rampupmaxavail"`
	RampDownMinAvail      float64   `json:"rampdownminavail"`
	PASAAvailability      float64   `json:"pasaavailability"`
	MaxAvail              float64   `json:"maxavail"`
}

// DispatchField ties a unit_dispatch column to its record value, its clamp and its total.
type DispatchField struct {
	Column string
	Clamp  *Clamp
	value  func(market.DispatchRecord) *float64
	total  func(*DispatchTotals) *float64
}

func present(v float64) *float64 { return &v }

// DispatchFields lists the summed attributes in output order.
var DispatchFields = []DispatchField{
	{
		Column: "availability",
		value:  func(r market.DispatchRecord) *float64 { return r.Availability },
		total:  func(t *DispatchTotals) *float64 { return &t.Availability },
	},
	{
		Column: "totalcleared",
		value:  func(r market.DispatchRecord) *float64 { return present(r.TotalCleared) },
		total:  func(t *DispatchTotals) *float64 { return &t.TotalCleared },
	},
	{
		Column: "finalmw",
		value:  func(r market.DispatchRecord) *float64 { return present(r.FinalMW) },
		total:  func(t *DispatchTotals) *float64 { return &t.FinalMW },
	},
	{
		Column: "asbidrampupmaxavail",
		Clamp:  &Clamp{Bound: "maxavail"},
		value:  func(r market.DispatchRecord) *float64 { return present(r.AsBidRampUpMaxAvail) },
		total:  func(t *DispatchTotals) *float64 { return &t.AsBidRampUpMaxAvail },
	},
	{
		Column: "asbidrampdownminavail",
		Clamp:  &Clamp{Floor: true},
		value:  func(r market.DispatchRecord) *float64 { return present(r.AsBidRampDownMinAvail) },
		total:  func(t *DispatchTotals) *float64 { return &t.AsBidRampDownMinAvail },
	},
	{
		Column: "rampupmaxavail",
		Clamp:  &Clamp{Bound: "availability"},
		value:  func(r market.DispatchRecord) *float64 { return present(r.RampUpMaxAvail) },
		total:  func(t *DispatchTotals) *float64 { return &t.RampUpMaxAvail },
	},
	{
		Column: "rampdownminavail",
		Clamp:  &Clamp{Floor: true},
		value:  func(r market.DispatchRecord) *float64 { return present(r.RampDownMinAvail) },
		total:  func(t *DispatchTotals) *float64 { return &t.RampDownMinAvail },
	},
	{
		Column: "pasaavailability",
		value:  func(r market.DispatchRecord) *float64 { return present(r.PASAAvailability) },
		total:  func(t *DispatchTotals) *float64 { return &t.PASAAvailability },
	},
	{
		Column: "maxavail",
		value:  func(r market.DispatchRecord) *float64 { return present(r.MaxAvail) },
		total:  func(t *DispatchTotals) *float64 { return &t.MaxAvail },
	},
}

func dispatchField(column string) (DispatchField, bool) {
	for _, f := range DispatchFields {
		if f.Column == column {
			return f, true
		}
	}
	return DispatchField{}, false
}

// Value returns the clamped record value, or nil when the column is NULL.
func (f DispatchField) Value(r market.DispatchRecord) *float64 {
	v := f.value(r)
	if v == nil || f.Clamp == nil {
		return v
	}
	var bound *float64
	if !f.Clamp.Floor {
		if b, ok := dispatchField(f.Clamp.Bound); ok {
			bound = b.value(r)
		}
	}
	clamped := f.Clamp.Apply(*v, bound)
	return &clamped
}

// Total returns the field's slot in a totals row.
func (f DispatchField) Total(t *DispatchTotals) *float64 {
	return f.total(t)
}

// SumSQL lowers the clamped sum of the field against a unit_dispatch alias.
// An all-NULL group sums to zero, as in memory.
func (f DispatchField) SumSQL(alias string) string {
	expr := alias + "." + f.Column
	if f.Clamp != nil {
		expr = f.Clamp.SQL(expr, alias)
	}
	return fmt.Sprintf("COALESCE(SUM(%s), 0) AS %s", expr, f.Column)
}

// Accumulate adds one record's clamped values to a totals row.
func Accumulate(t *DispatchTotals, r market.DispatchRecord) {
	for _, f := range DispatchFields {
		if v := f.Value(r); v != nil {
			*f.Total(t) += *v
		}
	}
}
