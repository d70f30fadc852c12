package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"bidstack/internal/market"
	"bidstack/internal/pricebins"
	"bidstack/internal/query"
)

var (
	from = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)
)

func TestBidAggregateSQL(t *testing.T) {
	q := query.BidQuery{
		Filter: query.Filter{Regions: []string{"NSW", "VIC"}, Start: from, End: to, Resolution: query.Hourly, TechTypes: []string{"Wind"}},
		Basis:  query.Raw,
	}
	st := bidAggregateSQL(q, pricebins.Default())

	for _, fragment := range []string{
		"SUM(b.bidvolume) AS volume",
		"LEFT JOIN unnest($1::text[], $2::float8[], $3::float8[], $4::bool[]) AS bins(bin_name, lower_edge, upper_edge, closed)",
		"b.interval_datetime BETWEEN $5 AND $6 AND EXTRACT(MINUTE FROM b.interval_datetime) = 0",
		"d.region = ANY($7::text[]) AND d.unit_type = ANY($8::text[])",
		"HAVING SUM(b.bidvolume) <> 0 OR bins.bin_name IS NULL",
	} {
		if !strings.Contains(st.sql, fragment) {
			t.Fatalf("SQL 缺少片段 %q:\n%s", fragment, st.sql)
		}
	}
	if len(st.args) != 8 {
		t.Fatalf("期望 8 个参数, 实际 %d", len(st.args))
	}
	if !reflect.DeepEqual(st.args[0], pricebins.Default().Names()) {
		t.Fatalf("分档名称参数应来自同一分档表: %v", st.args[0])
	}
	if st.args[4] != from || st.args[5] != to {
		t.Fatalf("时间窗口参数错误: %v %v", st.args[4], st.args[5])
	}
}

func TestBidAggregateSQLNoFilters(t *testing.T) {
	st := bidAggregateSQL(query.BidQuery{Filter: query.Filter{Start: from, End: to}}, pricebins.Default())
	if !strings.Contains(st.sql, "SUM(b.bidvolumeadjusted)") {
		t.Fatal("默认应使用调整后容量")
	}
	if strings.Contains(st.sql, "d.region") || strings.Contains(st.sql, "EXTRACT") {
		t.Fatalf("空过滤条件不应生成限制:\n%s", st.sql)
	}
	if len(st.args) != 6 {
		t.Fatalf("期望 6 个参数, 实际 %d", len(st.args))
	}
}

func TestDispatchSQL(t *testing.T) {
	st := dispatchFilterSQL(query.Filter{Start: from, End: to, DispatchType: market.Generator})
	for _, fragment := range []string{
		"COALESCE(SUM(LEAST(u.rampupmaxavail, u.availability)), 0) AS rampupmaxavail",
		"COALESCE(SUM(GREATEST(u.rampdownminavail, 0)), 0) AS rampdownminavail",
		"u.interval_datetime BETWEEN $1 AND $2 AND d.dispatch_type = $3",
		"GROUP BY u.interval_datetime",
	} {
		if !strings.Contains(st.sql, fragment) {
			t.Fatalf("SQL 缺少片段 %q:\n%s", fragment, st.sql)
		}
	}

	byUnits := dispatchUnitsSQL(query.UnitQuery{DUIDs: []string{"BW01"}, Start: from, End: to})
	if !strings.Contains(byUnits.sql, "u.duid = ANY($3::text[])") || !reflect.DeepEqual(byUnits.args[2], []string{"BW01"}) {
		t.Fatalf("按机组过滤 SQL 错误:\n%s", byUnits.sql)
	}
}

func TestPriceSQL(t *testing.T) {
	st := pricesSQL(query.PriceQuery{Regions: []string{"SA"}, Start: from, End: to})
	if !strings.Contains(st.sql, "SUM(rrp * totaldemand) / SUM(totaldemand)") {
		t.Fatalf("应按需求加权:\n%s", st.sql)
	}
	if !strings.Contains(st.sql, "HAVING SUM(totaldemand) <> 0") {
		t.Fatal("零需求时段应被排除")
	}
	if !strings.Contains(st.sql, "regionid = ANY($3::text[])") {
		t.Fatalf("区域过滤错误:\n%s", st.sql)
	}

	all := demandSQL(query.PriceQuery{Start: from, End: to})
	if strings.Contains(all.sql, "regionid") || strings.Contains(all.sql, "HAVING") {
		t.Fatalf("需求汇总不应过滤区域:\n%s", all.sql)
	}
}

func TestStationSQL(t *testing.T) {
	st := stationUnitsSQL(query.Filter{Regions: []string{"QLD"}, Start: from, End: to, Resolution: query.Hourly})
	if strings.Contains(st.sql, "EXTRACT") {
		t.Fatal("机组列表不应受整点分辨率影响")
	}
	if !strings.Contains(st.sql, "d.region = ANY($1::text[])") || !strings.Contains(st.sql, "b.interval_datetime BETWEEN $2 AND $3") {
		t.Fatalf("机组列表 SQL 错误:\n%s", st.sql)
	}

	names := stationsSQL([]string{"Bayswater Power Station"})
	if !strings.Contains(names.sql, "station_name = ANY($1::text[])") {
		t.Fatalf("电站查询 SQL 错误:\n%s", names.sql)
	}
}

func TestDispatchArgsNullAvailability(t *testing.T) {
	args := dispatchArgs(market.DispatchRecord{Interval: from, DUID: "U1"})
	if args[2] != nil {
		t.Fatalf("缺失的可用容量应写入 NULL, 实际 %v", args[2])
	}
	args = dispatchArgs(market.DispatchRecord{Availability: market.Float(12)})
	if args[2] != 12.0 {
		t.Fatalf("可用容量参数错误: %v", args[2])
	}
}

func TestUnconfigured(t *testing.T) {
	var exec *Executor
	rows, err := exec.AggregateBids(context.Background(), query.BidQuery{Filter: query.Filter{Start: from, End: to}})
	if !errors.Is(err, ErrNotConfigured) || rows != nil {
		t.Fatalf("未配置连接池时应返回 ErrNotConfigured, 实际 %v", err)
	}
	if err := (&Store{}).SyncPriceBins(context.Background(), pricebins.Default()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("未配置连接池时写入应失败, 实际 %v", err)
	}
	if exec.Name() != BackendName {
		t.Fatal("后端名称错误")
	}
}
