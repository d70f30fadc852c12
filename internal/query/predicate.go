package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bidstack/internal/pricebins"
	"bidstack/internal/units"
)

// Each predicate below carries its in-memory Match next to its SQL lowering so the two
// executors cannot drift apart.

// Args collects positional parameters for a SQL statement.
type Args struct {
	values []any
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// Values returns the collected parameters in placeholder order.
func (a *Args) Values() []any {
	return a.values
}

// And joins conditions, yielding TRUE when there are none.
func And(conds ...string) string {
	kept := conds[:0:0]
	for _, c := range conds {
		if c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return "TRUE"
	}
	return strings.Join(kept, " AND ")
}

// UnitPredicate filters on duid_info metadata.
type UnitPredicate struct {
	Regions      []string
	DispatchType string
	TechTypes    []string
}

// Match applies the predicate to resolved metadata.
func (p UnitPredicate) Match(m units.Metadata) bool {
	if len(p.Regions) > 0 && !contains(p.Regions, m.Region) {
		return false
	}
	if p.DispatchType != "" && m.DispatchType != p.DispatchType {
		return false
	}
	if len(p.TechTypes) > 0 && !contains(p.TechTypes, m.UnitType) {
		return false
	}
	return true
}

// SQL lowers the predicate against a duid_info alias.
func (p UnitPredicate) SQL(args *Args, alias string) string {
	var conds []string
	if len(p.Regions) > 0 {
		conds = append(conds, fmt.Sprintf("%s.region = ANY(%s::text[])", alias, args.Add(p.Regions)))
	}
	if p.DispatchType != "" {
		conds = append(conds, fmt.Sprintf("%s.dispatch_type = %s", alias, args.Add(p.DispatchType)))
	}
	if len(p.TechTypes) > 0 {
		conds = append(conds, fmt.Sprintf("%s.unit_type = ANY(%s::text[])", alias, args.Add(p.TechTypes)))
	}
	return And(conds...)
}

// IntervalPredicate is an inclusive time window with optional hourly thinning.
type IntervalPredicate struct {
	Start      time.Time
	End        time.Time
	Resolution Resolution
}

// Match reports whether an interval passes; onHour is the record's on-the-hour flag.
func (p IntervalPredicate) Match(t time.Time, onHour bool) bool {
	if t.Before(p.Start) || t.After(p.End) {
		return false
	}
	return p.Resolution.canonical() != Hourly || onHour
}

// SQL lowers the predicate against a timestamp column.
func (p IntervalPredicate) SQL(args *Args, column string) string {
	cond := fmt.Sprintf("%s BETWEEN %s AND %s", column, args.Add(p.Start), args.Add(p.End))
	if p.Resolution.canonical() == Hourly {
		cond += fmt.Sprintf(" AND EXTRACT(MINUTE FROM %s) = 0", column)
	}
	return cond
}

// UnitSet restricts to explicit unit identifiers. An empty set matches nothing.
type UnitSet []string

// Match reports membership.
func (s UnitSet) Match(duid string) bool {
	return contains(s, duid)
}

// SQL lowers the set against a duid column.
func (s UnitSet) SQL(args *Args, column string) string {
	return fmt.Sprintf("%s = ANY(%s::text[])", column, args.Add([]string(s)))
}

// RegionSet restricts regional records; empty applies no restriction.
type RegionSet []string

// Match reports membership.
func (s RegionSet) Match(region string) bool {
	return len(s) == 0 || contains(s, region)
}

// SQL lowers the set against a region column.
func (s RegionSet) SQL(args *Args, column string) string {
	if len(s) == 0 {
		return ""
	}
	return fmt.Sprintf("%s = ANY(%s::text[])", column, args.Add([]string(s)))
}

// BinSource lowers a bin table to an inline relation named alias with columns
// bin_name, lower_edge, upper_edge, closed.
func BinSource(args *Args, table *pricebins.Table, alias string) string {
	bins := table.Bins()
	names := make([]string, len(bins))
	lower := make([]float64, len(bins))
	upper := make([]float64, len(bins))
	closed := make([]bool, len(bins))
	for i, b := range bins {
		names[i], lower[i], upper[i], closed[i] = b.Name, b.Lower, b.Upper, b.Closed
	}
	return fmt.Sprintf("unnest(%s::text[], %s::float8[], %s::float8[], %s::bool[]) AS %s(bin_name, lower_edge, upper_edge, closed)",
		args.Add(names), args.Add(lower), args.Add(upper), args.Add(closed), alias)
}

// BinContains lowers pricebins.Bin.Contains for a price column against a BinSource alias.
func BinContains(alias, price string) string {
	return fmt.Sprintf("%[2]s >= %[1]s.lower_edge AND (%[2]s < %[1]s.upper_edge OR (%[1]s.closed AND %[2]s = %[1]s.upper_edge))", alias, price)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
