package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"bidstack/internal/query"
)

// Views accepted by Show.
const (
	ViewBids     = "bids"
	ViewDispatch = "dispatch"
	ViewPrices   = "prices"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	QueryOptions
	View string
}

// Show prints one aggregate view of the query window.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	queries, closeAll, err := a.newQueries(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer writer.Flush()

	switch opts.View {
	case "", ViewBids:
		rows, err := queries.AggregateBids(ctx, opts.Backend, opts.Query)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(writer, "no bids found")
			return nil
		}
		fmt.Fprintln(writer, "Interval (UTC)\tBin\tVolume (MW)")
		for _, r := range rows {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", r.Interval.UTC().Format(time.RFC3339), r.Bin, formatFloat(r.Volume, 3))
		}
	case ViewDispatch:
		rows, err := queries.AggregateDispatch(ctx, opts.Backend, opts.Query.Filter)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(writer, "no dispatch records found")
			return nil
		}
		header := "Interval (UTC)"
		for _, f := range query.DispatchFields {
			header += "\t" + f.Column
		}
		fmt.Fprintln(writer, header)
		for i := range rows {
			line := rows[i].Interval.UTC().Format(time.RFC3339)
			for _, f := range query.DispatchFields {
				line += "\t" + formatFloat(*f.Total(&rows[i]), 1)
			}
			fmt.Fprintln(writer, line)
		}
	case ViewPrices:
		q := query.PriceQuery{Regions: opts.Query.Regions, Start: opts.Query.Start, End: opts.Query.End}
		prices, err := queries.AggregatePrices(ctx, opts.Backend, q)
		if err != nil {
			return err
		}
		demand, err := queries.RegionDemand(ctx, opts.Backend, q)
		if err != nil {
			return err
		}
		totals := make(map[time.Time]float64, len(demand))
		for _, d := range demand {
			totals[d.Interval.UTC()] = d.TotalDemand
		}
		if len(prices) == 0 {
			fmt.Fprintln(writer, "no prices found")
			return nil
		}
		fmt.Fprintln(writer, "Interval (UTC)\tWeighted price ($/MWh)\tDemand (MW)")
		for _, p := range prices {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", p.Interval.UTC().Format(time.RFC3339), formatFloat(p.Price, 2), formatFloat(totals[p.Interval.UTC()], 1))
		}
	default:
		return errors.New("--view must be bids, dispatch or prices")
	}
	return nil
}

// TechTypes prints every resolved unit type.
func (a *App) TechTypes(ctx context.Context, backend string) error {
	queries, closeAll, err := a.newQueries(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	types, err := queries.DistinctTechTypes(ctx, backend)
	if err != nil {
		return err
	}
	for _, t := range types {
		fmt.Fprintln(os.Stdout, t)
	}
	return nil
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
