package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bidstack/internal/query"
)

// queryFlags binds the shared bid filter flags of a command.
type queryFlags struct {
	from         string
	to           string
	regions      []string
	resolution   string
	dispatchType string
	techTypes    []string
	basis        string
	backend      string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Start interval (RFC3339, inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "End interval (RFC3339, inclusive)")
	cmd.Flags().StringSliceVar(&f.regions, "regions", nil, "Region codes, e.g. NSW,VIC (empty = all)")
	cmd.Flags().StringVar(&f.resolution, "resolution", "native", "native or hourly")
	cmd.Flags().StringVar(&f.dispatchType, "dispatch-type", "", "Generator or Load (empty = both)")
	cmd.Flags().StringSliceVar(&f.techTypes, "tech-types", nil, "Unit type labels (empty = all)")
	cmd.Flags().StringVar(&f.basis, "volume-basis", "adjusted", "raw or adjusted")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Backend to query (defaults to config)")
}

func parseTime(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("--%s must be provided", flag)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s value: %w", flag, err)
	}
	return t.UTC(), nil
}

func (f *queryFlags) build() (query.BidQuery, error) {
	from, err := parseTime("from", f.from)
	if err != nil {
		return query.BidQuery{}, err
	}
	to, err := parseTime("to", f.to)
	if err != nil {
		return query.BidQuery{}, err
	}
	resolution, err := query.ParseResolution(f.resolution)
	if err != nil {
		return query.BidQuery{}, err
	}
	basis, err := query.ParseVolumeBasis(f.basis)
	if err != nil {
		return query.BidQuery{}, err
	}

	q := query.BidQuery{
		Filter: query.Filter{
			Regions:      f.regions,
			Start:        from,
			End:          to,
			Resolution:   resolution,
			DispatchType: f.dispatchType,
			TechTypes:    f.techTypes,
		},
		Basis: basis,
	}
	if err := q.Validate(); err != nil {
		return query.BidQuery{}, err
	}
	return q, nil
}
