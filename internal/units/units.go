package units

import (
	"sort"
	"strings"

	"bidstack/internal/market"
)

// Other is the label assigned when no rule and no fuel descriptor can classify a unit.
const Other = "Other"

// Placeholder descriptor used upstream for blank registration cells.
const blank = "-"

// Row is a raw registration entry.
type Row struct {
	DUID         string
	Region       string
	FuelSource   string
	DispatchType string
	Technology   string
	StationName  string
}

// Metadata is the static description of a unit used for filtering.
type Metadata struct {
	DUID         string
	Region       string
	FuelSource   string
	DispatchType string
	Technology   string
	UnitType     string
	StationName  string
}

// Rule maps a registration row to a unit type label when Match holds.
type Rule struct {
	Name  string
	Match func(r Row) bool
	Label func(r Row) string
}

func fixed(label string) func(Row) string {
	return func(Row) string { return label }
}

func fuelIn(values ...string) func(Row) bool {
	return func(r Row) bool { return contains(values, r.FuelSource) }
}

func techIn(values ...string) func(Row) bool {
	return func(r Row) bool { return contains(values, r.Technology) }
}

func isLoad(r Row) bool { return r.DispatchType == market.Load }

// Rules is evaluated top to bottom; the first match wins.
var Rules = []Rule{
	{Name: "primary fuel", Match: fuelIn("Solar", "Wind", "Black Coal", "Brown Coal"), Label: func(r Row) string { return r.FuelSource }},
	{Name: "battery charge", Match: func(r Row) bool { return techIn("Battery", "Battery and Inverter")(r) && isLoad(r) }, Label: fixed("Battery Charge")},
	{Name: "battery discharge", Match: techIn("Battery", "Battery and Inverter"), Label: fixed("Battery Discharge")},
	{Name: "hydro", Match: techIn("Hydro - Gravity"), Label: fixed("Hydro")},
	{Name: "run of river", Match: techIn("Run of River"), Label: fixed("Run of River Hydro")},
	{Name: "pump storage charge", Match: func(r Row) bool { return r.Technology == "Pump Storage" && isLoad(r) }, Label: fixed("Pump Storage Charge")},
	{Name: "pump storage discharge", Match: techIn("Pump Storage"), Label: fixed("Pump Storage Discharge")},
	{Name: "undescribed load", Match: func(r Row) bool { return r.Technology == blank && r.FuelSource == blank && isLoad(r) }, Label: fixed("Pump Storage Charge")},
	{Name: "ocgt", Match: techIn("Open Cycle Gas turbines (OCGT)"), Label: fixed("OCGT")},
	{Name: "ccgt", Match: techIn("Combined Cycle Gas Turbine (CCGT)"), Label: fixed("CCGT")},
	{Name: "gas thermal", Match: func(r Row) bool {
		return fuelIn("Natural Gas / Fuel Oil", "Natural Gas")(r) && r.Technology == "Steam Sub-Critical"
	}, Label: fixed("Gas Thermal")},
	{Name: "engine", Match: func(r Row) bool { return strings.Contains(r.Technology, "Engine") }, Label: fixed("Engine")},
	{Name: "fuel fallback", Match: func(r Row) bool { return r.FuelSource != "" && r.FuelSource != blank }, Label: func(r Row) string { return r.FuelSource }},
}

// VariableTechnologies have availability bounded by a forecast of the resource.
var VariableTechnologies = []string{"Solar", "Wind"}

// Clean fills blank descriptors and strips the region number.
func Clean(r Row) Row {
	r.DUID = strings.TrimSpace(r.DUID)
	r.Region = market.NormalizeRegion(r.Region)
	r.FuelSource = orBlank(r.FuelSource)
	r.Technology = orBlank(r.Technology)
	r.DispatchType = strings.TrimSpace(r.DispatchType)
	r.StationName = strings.TrimSpace(r.StationName)
	return r
}

// Resolve derives the unit type label for a registration row.
func Resolve(r Row) string {
	r = Clean(r)
	for _, rule := range Rules {
		if rule.Match(r) {
			return rule.Label(r)
		}
	}
	return Other
}

// IsVariable reports whether a unit type's availability follows a resource forecast.
func IsVariable(unitType string) bool {
	return contains(VariableTechnologies, unitType)
}

// Registry provides keyed lookups over registration data.
type Registry struct {
	byID map[string]Metadata
}

// excluded placeholder registrations carry no real plant.
var excluded = map[string]struct{}{"BLNKVIC": {}, "BLNKTAS": {}}

// NewRegistry resolves every row once; later rows with the same DUID win.
func NewRegistry(rows []Row) *Registry {
	reg := &Registry{byID: make(map[string]Metadata, len(rows))}
	for _, raw := range rows {
		r := Clean(raw)
		if r.DUID == "" {
			continue
		}
		if _, skip := excluded[r.DUID]; skip {
			continue
		}
		reg.byID[r.DUID] = Metadata{
			DUID:         r.DUID,
			Region:       r.Region,
			FuelSource:   r.FuelSource,
			DispatchType: r.DispatchType,
			Technology:   r.Technology,
			UnitType:     Resolve(r),
			StationName:  r.StationName,
		}
	}
	return reg
}

// Lookup returns metadata for a single unit.
func (r *Registry) Lookup(duid string) (Metadata, bool) {
	m, ok := r.byID[duid]
	return m, ok
}

// MetadataFor returns the known subset of the requested units.
func (r *Registry) MetadataFor(duids []string) map[string]Metadata {
	out := make(map[string]Metadata, len(duids))
	for _, id := range duids {
		if m, ok := r.byID[id]; ok {
			out[id] = m
		}
	}
	return out
}

// All returns every unit ordered by DUID.
func (r *Registry) All() []Metadata {
	out := make([]Metadata, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DUID < out[j].DUID })
	return out
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	return len(r.byID)
}

func orBlank(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return blank
	}
	return v
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
