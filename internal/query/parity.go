package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTolerance is the relative difference allowed between backends.
const DefaultTolerance = 1e-6

// BackendDivergenceError reports that two backends disagreed on the same query.
type BackendDivergenceError struct {
	Operation string
	Left      string
	Right     string
	Detail    string
}

func (e *BackendDivergenceError) Error() string {
	return fmt.Sprintf("%s: %s and %s diverge: %s", e.Operation, e.Left, e.Right, e.Detail)
}

// Parity runs one query on two backends and compares the rows.
type Parity struct {
	Left      Backend
	Right     Backend
	Tolerance float64
}

// Close reports whether a and b agree within relative tolerance. Values near zero are
// compared absolutely.
func Close(a, b, tolerance float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tolerance*scale
}

func (p Parity) tolerance() float64 {
	if p.Tolerance > 0 {
		return p.Tolerance
	}
	return DefaultTolerance
}

func (p Parity) diverge(op, format string, args ...any) error {
	return &BackendDivergenceError{Operation: op, Left: p.Left.Name(), Right: p.Right.Name(), Detail: fmt.Sprintf(format, args...)}
}

func both[T any](ctx context.Context, p Parity, run func(context.Context, Backend) ([]T, error)) ([]T, []T, error) {
	var left, right []T
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := run(ctx, p.Left)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Left.Name(), err)
		}
		left = rows
		return nil
	})
	g.Go(func() error {
		rows, err := run(ctx, p.Right)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Right.Name(), err)
		}
		right = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

type binKey struct {
	interval time.Time
	bin      string
}

// Bids compares aggregate_bids on both backends.
func (p Parity) Bids(ctx context.Context, q BidQuery) error {
	left, right, err := both(ctx, p, func(ctx context.Context, b Backend) ([]BinVolume, error) {
		return b.AggregateBids(ctx, q)
	})
	if err != nil {
		return err
	}
	index := make(map[binKey]float64, len(right))
	for _, r := range right {
		index[binKey{r.Interval.UTC(), r.Bin}] = r.Volume
	}
	for _, l := range left {
		k := binKey{l.Interval.UTC(), l.Bin}
		v, ok := index[k]
		if !ok {
			return p.diverge("aggregate_bids", "%s bin %s only on %s", k.interval.Format(time.RFC3339), k.bin, p.Left.Name())
		}
		if !Close(l.Volume, v, p.tolerance()) {
			return p.diverge("aggregate_bids", "%s bin %s volume %v vs %v", k.interval.Format(time.RFC3339), k.bin, l.Volume, v)
		}
		delete(index, k)
	}
	for k := range index {
		return p.diverge("aggregate_bids", "%s bin %s only on %s", k.interval.Format(time.RFC3339), k.bin, p.Right.Name())
	}
	return nil
}

// Dispatch compares aggregate_dispatch on both backends.
func (p Parity) Dispatch(ctx context.Context, f Filter) error {
	left, right, err := both(ctx, p, func(ctx context.Context, b Backend) ([]DispatchTotals, error) {
		return b.AggregateDispatch(ctx, f)
	})
	if err != nil {
		return err
	}
	if len(left) != len(right) {
		return p.diverge("aggregate_dispatch", "%d intervals vs %d", len(left), len(right))
	}
	for i := range left {
		l, r := left[i], right[i]
		if !l.Interval.Equal(r.Interval) {
			return p.diverge("aggregate_dispatch", "interval %s vs %s", l.Interval.Format(time.RFC3339), r.Interval.Format(time.RFC3339))
		}
		for _, field := range DispatchFields {
			a, b := *field.Total(&l), *field.Total(&r)
			if !Close(a, b, p.tolerance()) {
				return p.diverge("aggregate_dispatch", "%s %s %v vs %v", l.Interval.Format(time.RFC3339), field.Column, a, b)
			}
		}
	}
	return nil
}

// Prices compares aggregate_prices on both backends.
func (p Parity) Prices(ctx context.Context, q PriceQuery) error {
	left, right, err := both(ctx, p, func(ctx context.Context, b Backend) ([]WeightedPrice, error) {
		return b.AggregatePrices(ctx, q)
	})
	if err != nil {
		return err
	}
	if len(left) != len(right) {
		return p.diverge("aggregate_prices", "%d intervals vs %d", len(left), len(right))
	}
	for i := range left {
		l, r := left[i], right[i]
		if !l.Interval.Equal(r.Interval) || !Close(l.Price, r.Price, p.tolerance()) {
			return p.diverge("aggregate_prices", "%s %v vs %s %v", l.Interval.Format(time.RFC3339), l.Price, r.Interval.Format(time.RFC3339), r.Price)
		}
	}
	return nil
}

// Check runs every aggregate comparison for one filter and returns the first divergence.
func (p Parity) Check(ctx context.Context, q BidQuery) error {
	if err := p.Bids(ctx, q); err != nil {
		return err
	}
	if err := p.Dispatch(ctx, q.Filter); err != nil {
		return err
	}
	return p.Prices(ctx, PriceQuery{Regions: q.Regions, Start: q.Start, End: q.End})
}
