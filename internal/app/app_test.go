package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bidstack/internal/config"
	"bidstack/internal/pricebins"
	"bidstack/internal/query"
)

var (
	slot1 = time.Date(2022, 1, 1, 1, 55, 0, 0, time.UTC)
	slot2 = time.Date(2022, 1, 1, 2, 0, 0, 0, time.UTC)
)

func testApp() *App {
	cfg := &config.Config{
		Cache:  config.CacheConfig{Dir: filepath.Join("..", "rawcache", "testdata", "cache")},
		Bins:   config.BinsConfig{Edges: pricebins.DefaultEdges},
		Query:  config.QueryConfig{Backend: config.BackendMemory},
		Export: config.ExportConfig{MaxDataPoints: 100},
	}
	return NewApp(cfg, zerolog.Nop())
}

func TestPivotOrdersBinsByTable(t *testing.T) {
	rows := []query.BinVolume{
		{Interval: slot2, Bin: "[50, 100)", Volume: 5},
		{Interval: slot1, Bin: "[0, 50)", Volume: 3},
		{Interval: slot1, Bin: "[50, 100)", Volume: 2},
	}
	stack := pivot(rows, pricebins.Default().Names())
	if len(stack.intervals) != 2 || !stack.intervals[0].Equal(slot1) {
		t.Fatalf("时段应按时间排序: %v", stack.intervals)
	}
	if len(stack.bins) != 2 || stack.bins[0] != "[0, 50)" {
		t.Fatalf("分档应按分档表顺序且只保留出现过的分档: %v", stack.bins)
	}
	if stack.volumes[slot2]["[50, 100)"] != 5 {
		t.Fatal("透视结果不正确")
	}
}

func TestDownsampleIntervals(t *testing.T) {
	intervals := make([]time.Time, 10)
	for i := range intervals {
		intervals[i] = slot1.Add(time.Duration(i) * 5 * time.Minute)
	}
	got := downsampleIntervals(intervals, 4)
	if len(got) != 4 || !got[0].Equal(intervals[0]) || !got[3].Equal(intervals[9]) {
		t.Fatalf("降采样应保留首尾: %v", got)
	}
	if len(downsampleIntervals(intervals, 0)) != 10 {
		t.Fatal("max<=0 时不应降采样")
	}
}

func TestExportCSVFromMemoryBackend(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "bids.csv")
	opts := ExportOptions{
		QueryOptions: QueryOptions{Query: query.BidQuery{Filter: query.Filter{Start: slot1, End: slot2}, Basis: query.Adjusted}},
		CSVPath:      out,
	}
	if err := testApp().Export(context.Background(), opts); err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	file, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 7 {
		t.Fatalf("期望表头加 6 行, 实际 %d", len(records))
	}
	if records[1][0] != "2022-01-01T01:55:00Z" || records[1][1] != "[-1000, -100)" || records[1][2] != "100.000" {
		t.Fatalf("首行内容错误: %v", records[1])
	}
}

func TestExportRequiresTarget(t *testing.T) {
	if err := testApp().Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("未指定输出时应报错")
	}
}

func TestPostgresDefaultNeedsDSN(t *testing.T) {
	a := testApp()
	a.Config.Query.Backend = config.BackendPostgres
	if _, _, err := a.newQueries(context.Background()); err == nil {
		t.Fatal("未配置数据库时默认后端不可用")
	}
}
