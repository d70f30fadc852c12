package memtable

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bidstack/internal/bids"
	"bidstack/internal/market"
	"bidstack/internal/pricebins"
	"bidstack/internal/query"
	"bidstack/internal/rawcache"
	"bidstack/internal/units"
)

var errUnavailable = errors.New("extract unavailable")

// registryOnly serves registration rows but no time series.
type registryOnly struct {
	reads int
}

func (s *registryOnly) PriceOffers(time.Time, time.Time) ([]bids.PriceOffer, error) {
	s.reads++
	return nil, errUnavailable
}

func (s *registryOnly) VolumeOffers(time.Time, time.Time) ([]bids.VolumeOffer, error) {
	s.reads++
	return nil, errUnavailable
}

func (s *registryOnly) Telemetry(time.Time, time.Time) ([]bids.Telemetry, error) {
	s.reads++
	return nil, errUnavailable
}

func (s *registryOnly) RegionIntervals(time.Time, time.Time) ([]market.RegionInterval, error) {
	s.reads++
	return nil, errUnavailable
}

func (s *registryOnly) Registration() ([]units.Row, error) {
	return []units.Row{{DUID: "U1", Region: "VIC1", FuelSource: "Wind", DispatchType: market.Generator, StationName: "Hill"}}, nil
}

func TestReaderMatchesPreparedTable(t *testing.T) {
	source := rawcache.New(filepath.Join("..", "rawcache", "testdata", "cache"))
	reader, err := NewReader(source, pricebins.Default(), zerolog.Nop())
	if err != nil {
		t.Fatalf("创建读取器失败: %v", err)
	}
	table := loadFixture(t)
	ctx := context.Background()
	q := query.BidQuery{Filter: filter(), Basis: query.Adjusted}

	want, err := table.AggregateBids(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reader.AggregateBids(ctx, q)
	if err != nil || !reflect.DeepEqual(got, want) {
		t.Fatalf("按窗口读取的结果应与预处理表一致:\n期望 %v\n实际 %v (err=%v)", want, got, err)
	}

	dispatch, err := reader.AggregateDispatch(ctx, filter())
	if err != nil || len(dispatch) != 2 || dispatch[0].Availability != 290 {
		t.Fatalf("调度聚合错误: %v %v", dispatch, err)
	}

	types, err := reader.DistinctTechTypes(ctx)
	if err != nil || len(types) != 4 {
		t.Fatalf("技术类型列表错误: %v %v", types, err)
	}
}

func TestReaderValidatesBeforeReading(t *testing.T) {
	source := &registryOnly{}
	reader, err := NewReader(source, pricebins.Default(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	bad := query.BidQuery{Filter: query.Filter{Start: slot1, End: slot2, Resolution: "daily"}}
	var invalid *query.InvalidFilterError
	if _, err := reader.AggregateBids(ctx, bad); !errors.As(err, &invalid) || source.reads != 0 {
		t.Fatalf("非法过滤条件应在读取前被拒绝: %v (reads=%d)", err, source.reads)
	}

	rows, err := reader.AggregateBids(ctx, query.BidQuery{Filter: filter()})
	if !errors.Is(err, errUnavailable) || rows != nil {
		t.Fatalf("读取失败时不应返回结果: %v %v", rows, err)
	}

	duids, err := reader.DUIDsForStations(ctx, []string{"Hill"})
	if err != nil || !reflect.DeepEqual(duids, []string{"U1"}) {
		t.Fatalf("电站查询只依赖注册信息: %v %v", duids, err)
	}
}
