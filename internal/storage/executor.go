package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidstack/internal/pricebins"
	"bidstack/internal/query"
)

// BackendName identifies this backend in logs and divergence reports.
const BackendName = "postgres"

// Executor answers the query surface from the relational store by lowering the shared
// predicates, clamp rules and bin table into SQL.
type Executor struct {
	pool *pgxpool.Pool
	bins *pricebins.Table
}

var _ query.Backend = (*Executor)(nil)

// NewExecutor binds a pool and the run's bin table.
func NewExecutor(pool *pgxpool.Pool, bins *pricebins.Table) *Executor {
	return &Executor{pool: pool, bins: bins}
}

// Name implements query.Backend.
func (e *Executor) Name() string { return BackendName }

// Bins implements query.Backend.
func (e *Executor) Bins() *pricebins.Table { return e.bins }

func (e *Executor) getPool() (*pgxpool.Pool, error) {
	if e == nil || e.pool == nil {
		return nil, ErrNotConfigured
	}
	return e.pool, nil
}

// statement is lowered SQL with its positional arguments.
type statement struct {
	sql  string
	args []any
}

func (e *Executor) collect(ctx context.Context, op string, st statement, scan func(pgx.Rows) error) error {
	pool, err := e.getPool()
	if err != nil {
		return err
	}
	rows, err := pool.Query(ctx, st.sql, st.args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func bidAggregateSQL(q query.BidQuery, bins *pricebins.Table) statement {
	var args query.Args
	source := query.BinSource(&args, bins, "bins")
	volume := "b." + q.Basis.Column()
	where := query.And(q.Window().SQL(&args, "b.interval_datetime"), q.Units().SQL(&args, "d"))
	sql := fmt.Sprintf(`SELECT
        b.interval_datetime,
        bins.bin_name,
        SUM(%[1]s) AS volume,
        MIN(b.bidprice) AS price
    FROM bidding_data b
    JOIN duid_info d ON d.duid = b.duid
    LEFT JOIN %[2]s ON %[3]s
    WHERE %[4]s
    GROUP BY b.interval_datetime, bins.bin_name
    HAVING SUM(%[1]s) <> 0 OR bins.bin_name IS NULL
    ORDER BY b.interval_datetime;`, volume, source, query.BinContains("bins", "b.bidprice"), where)
	return statement{sql: sql, args: args.Values()}
}

// AggregateBids sums the chosen volume basis per interval and price bin. A price outside
// the bin table yields a NULL bin and fails the whole query.
func (e *Executor) AggregateBids(ctx context.Context, q query.BidQuery) ([]query.BinVolume, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.getPool(); err != nil {
		return nil, err
	}
	out := make([]query.BinVolume, 0)
	err := e.collect(ctx, "aggregate bids", bidAggregateSQL(q, e.bins), func(rows pgx.Rows) error {
		var (
			row   query.BinVolume
			bin   *string
			price float64
		)
		if err := rows.Scan(&row.Interval, &bin, &row.Volume, &price); err != nil {
			return err
		}
		if bin == nil {
			return &pricebins.OutOfRangeError{Price: price, Lower: e.bins.Lower(), Upper: e.bins.Upper()}
		}
		row.Bin = *bin
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	query.SortBinVolumes(out, e.bins)
	return out, nil
}

func dispatchSQL(where string, args query.Args) statement {
	sums := make([]string, len(query.DispatchFields))
	for i, f := range query.DispatchFields {
		sums[i] = f.SumSQL("u")
	}
	sql := fmt.Sprintf(`SELECT
        u.interval_datetime,
        %s
    FROM unit_dispatch u
    JOIN duid_info d ON d.duid = u.duid
    WHERE %s
    GROUP BY u.interval_datetime
    ORDER BY u.interval_datetime;`, strings.Join(sums, ",\n        "), where)
	return statement{sql: sql, args: args.Values()}
}

func dispatchFilterSQL(f query.Filter) statement {
	var args query.Args
	where := query.And(f.Window().SQL(&args, "u.interval_datetime"), f.Units().SQL(&args, "d"))
	return dispatchSQL(where, args)
}

func dispatchUnitsSQL(q query.UnitQuery) statement {
	var args query.Args
	where := query.And(q.Window().SQL(&args, "u.interval_datetime"), query.UnitSet(q.DUIDs).SQL(&args, "u.duid"))
	return dispatchSQL(where, args)
}

func (e *Executor) dispatch(ctx context.Context, st statement) ([]query.DispatchTotals, error) {
	out := make([]query.DispatchTotals, 0)
	err := e.collect(ctx, "aggregate dispatch", st, func(rows pgx.Rows) error {
		var row query.DispatchTotals
		dest := []any{&row.Interval}
		for _, f := range query.DispatchFields {
			dest = append(dest, f.Total(&row))
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AggregateDispatch sums clamped dispatch attributes per interval.
func (e *Executor) AggregateDispatch(ctx context.Context, f query.Filter) ([]query.DispatchTotals, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return e.dispatch(ctx, dispatchFilterSQL(f))
}

// AggregateDispatchByUnits sums clamped dispatch attributes for explicit units.
func (e *Executor) AggregateDispatchByUnits(ctx context.Context, q query.UnitQuery) ([]query.DispatchTotals, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return e.dispatch(ctx, dispatchUnitsSQL(q))
}

func bidsByUnitSQL(q query.UnitQuery) statement {
	var args query.Args
	where := query.And(q.Window().SQL(&args, "interval_datetime"), query.UnitSet(q.DUIDs).SQL(&args, "duid"))
	sql := fmt.Sprintf(`SELECT
        interval_datetime,
        duid,
        bidband,
        %s,
        bidprice
    FROM bidding_data
    WHERE %s
    ORDER BY interval_datetime, duid COLLATE "C", bidband;`, q.Basis.Column(), where)
	return statement{sql: sql, args: args.Values()}
}

// BidsByUnit lists stored bands of explicit units.
func (e *Executor) BidsByUnit(ctx context.Context, q query.UnitQuery) ([]query.UnitBid, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	out := make([]query.UnitBid, 0)
	err := e.collect(ctx, "bids by unit", bidsByUnitSQL(q), func(rows pgx.Rows) error {
		var row query.UnitBid
		if err := rows.Scan(&row.Interval, &row.DUID, &row.Band, &row.Volume, &row.Price); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func stationsSQL(stations []string) statement {
	var args query.Args
	sql := fmt.Sprintf(`SELECT duid
    FROM duid_info
    WHERE %s
    ORDER BY duid COLLATE "C";`, query.UnitSet(stations).SQL(&args, "station_name"))
	return statement{sql: sql, args: args.Values()}
}

// DUIDsForStations lists units belonging to the named stations.
func (e *Executor) DUIDsForStations(ctx context.Context, stations []string) ([]string, error) {
	out := make([]string, 0)
	err := e.collect(ctx, "duids for stations", stationsSQL(stations), func(rows pgx.Rows) error {
		var duid string
		if err := rows.Scan(&duid); err != nil {
			return err
		}
		out = append(out, duid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func stationUnitsSQL(f query.Filter) statement {
	var args query.Args
	unitCond := f.Units().SQL(&args, "d")
	span := f.Span().SQL(&args, "b.interval_datetime")
	sql := fmt.Sprintf(`SELECT d.duid, d.station_name
    FROM duid_info d
    WHERE %s
      AND EXISTS (
        SELECT 1 FROM bidding_data b
        WHERE b.duid = d.duid AND %s
      )
    ORDER BY d.duid COLLATE "C";`, unitCond, span)
	return statement{sql: sql, args: args.Values()}
}

// DUIDsAndStations lists units matching the filter that bid inside the window.
func (e *Executor) DUIDsAndStations(ctx context.Context, f query.Filter) ([]query.StationUnit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := make([]query.StationUnit, 0)
	err := e.collect(ctx, "duids and stations", stationUnitsSQL(f), func(rows pgx.Rows) error {
		var row query.StationUnit
		if err := rows.Scan(&row.DUID, &row.StationName); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func regionSQL(q query.PriceQuery, selectExpr, having string) statement {
	var args query.Args
	where := query.And(q.Window().SQL(&args, "settlementdate"), query.RegionSet(q.Regions).SQL(&args, "regionid"))
	sql := fmt.Sprintf(`SELECT settlementdate, %s
    FROM demand_data
    WHERE %s
    GROUP BY settlementdate%s
    ORDER BY settlementdate;`, selectExpr, where, having)
	return statement{sql: sql, args: args.Values()}
}

func pricesSQL(q query.PriceQuery) statement {
	return regionSQL(q, "SUM(rrp * totaldemand) / SUM(totaldemand) AS weighted_price", "\n    HAVING SUM(totaldemand) <> 0")
}

func demandSQL(q query.PriceQuery) statement {
	return regionSQL(q, "SUM(totaldemand) AS totaldemand", "")
}

// AggregatePrices returns the demand-weighted price per interval. Intervals with zero
// total demand have no defined price and are omitted.
func (e *Executor) AggregatePrices(ctx context.Context, q query.PriceQuery) ([]query.WeightedPrice, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	out := make([]query.WeightedPrice, 0)
	err := e.collect(ctx, "aggregate prices", pricesSQL(q), func(rows pgx.Rows) error {
		var row query.WeightedPrice
		if err := rows.Scan(&row.Interval, &row.Price); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RegionDemand returns summed demand per interval.
func (e *Executor) RegionDemand(ctx context.Context, q query.PriceQuery) ([]query.Demand, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	out := make([]query.Demand, 0)
	err := e.collect(ctx, "region demand", demandSQL(q), func(rows pgx.Rows) error {
		var row query.Demand
		if err := rows.Scan(&row.Interval, &row.TotalDemand); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const distinctTechTypesSQL = `SELECT DISTINCT unit_type COLLATE "C" AS unit_type
    FROM duid_info
    ORDER BY 1;`

// DistinctTechTypes lists every resolved unit type.
func (e *Executor) DistinctTechTypes(ctx context.Context) ([]string, error) {
	out := make([]string, 0)
	err := e.collect(ctx, "distinct tech types", statement{sql: distinctTechTypesSQL}, func(rows pgx.Rows) error {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
