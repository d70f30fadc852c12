package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"bidstack/internal/query"
)

// bidStack is aggregated bid volume pivoted to one column per bin.
type bidStack struct {
	intervals []time.Time
	bins      []string
	volumes   map[time.Time]map[string]float64
}

func pivot(rows []query.BinVolume, bins []string) bidStack {
	stack := bidStack{volumes: make(map[time.Time]map[string]float64)}
	used := make(map[string]bool)
	for _, r := range rows {
		t := r.Interval.UTC()
		byBin, ok := stack.volumes[t]
		if !ok {
			byBin = make(map[string]float64)
			stack.volumes[t] = byBin
			stack.intervals = append(stack.intervals, t)
		}
		byBin[r.Bin] += r.Volume
		used[r.Bin] = true
	}
	sort.Slice(stack.intervals, func(i, j int) bool { return stack.intervals[i].Before(stack.intervals[j]) })
	for _, name := range bins {
		if used[name] {
			stack.bins = append(stack.bins, name)
		}
	}
	return stack
}

// Export renders aggregated bids as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	queries, closeAll, err := a.newQueries(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	backend, err := queries.Backend(opts.Backend)
	if err != nil {
		return err
	}
	rows, err := queries.AggregateBids(ctx, opts.Backend, opts.Query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no bids found for export window")
		return nil
	}

	stack := pivot(rows, backend.Bins().Names())
	total := len(stack.intervals)
	stack.intervals = downsampleIntervals(stack.intervals, opts.MaxPoints)
	a.Logger.Info().Int("total", total).Int("exported", len(stack.intervals)).Msg("exporting bid stack")

	if opts.CSVPath != "" {
		if err := writeStackCSV(opts.CSVPath, stack); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeStackPNG(opts.PNGPath, stack); err != nil {
			return err
		}
	}

	return nil
}

func downsampleIntervals(intervals []time.Time, max int) []time.Time {
	if max <= 0 || len(intervals) <= max {
		return intervals
	}
	if max == 1 {
		return intervals[:1]
	}

	result := make([]time.Time, 0, max)
	step := float64(len(intervals)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(intervals) {
			idx = len(intervals) - 1
		}
		result = append(result, intervals[idx])
	}
	return result
}

func writeStackCSV(path string, stack bidStack) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"interval_datetime", "bin_name", "volume"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, t := range stack.intervals {
		for _, bin := range stack.bins {
			v, ok := stack.volumes[t][bin]
			if !ok {
				continue
			}
			record := []string{t.Format(time.RFC3339), bin, formatFloat(v, 3)}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeStackPNG(path string, stack bidStack) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(stack.intervals) < 2 {
		return errors.New("png export needs at least two intervals")
	}

	series := make([]chart.Series, 0, len(stack.bins))
	for _, bin := range stack.bins {
		y := make([]float64, len(stack.intervals))
		for i, t := range stack.intervals {
			y[i] = stack.volumes[t][bin]
		}
		series = append(series, chart.TimeSeries{
			Name:    bin,
			XValues: stack.intervals,
			YValues: y,
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Volume (MW)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
