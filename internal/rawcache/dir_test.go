package rawcache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var (
	first = time.Date(2022, 1, 1, 1, 55, 0, 0, time.UTC)
	last  = time.Date(2022, 1, 1, 2, 5, 0, 0, time.UTC)
)

func fixture() Dir {
	return New(filepath.Join("testdata", "cache"))
}

func TestPriceOffersWindow(t *testing.T) {
	offers, err := fixture().PriceOffers(first, last)
	if err != nil {
		t.Fatalf("读取价格报价失败: %v", err)
	}
	// 2021-12-20 的报价不在窗口内
	if len(offers) != 6 {
		t.Fatalf("期望 6 条价格报价, 实际 %d", len(offers))
	}
	if offers[0].DUID != "BW01" || offers[0].Prices[1] != -55.03 {
		t.Fatalf("BOM 表头或价格解析错误: %#v", offers[0])
	}
}

func TestVolumeOffers(t *testing.T) {
	offers, err := fixture().VolumeOffers(first, first.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("读取数量报价失败: %v", err)
	}
	if len(offers) != 10 {
		t.Fatalf("期望 10 条数量报价, 实际 %d", len(offers))
	}
	for _, o := range offers {
		if o.DUID == "BW01" && o.BidType == "RAISE6SEC" && o.MaxAvail != nil {
			t.Fatal("空 MAXAVAIL 应解析为 nil")
		}
	}
	bw := offers[0]
	if bw.Volumes[0] != 3000 || *bw.MaxAvail != 660 || bw.ROCUp != 3 || bw.PASAAvailability != 680 {
		t.Fatalf("数量报价字段解析错误: %#v", bw)
	}
}

func TestTelemetry(t *testing.T) {
	rows, err := fixture().Telemetry(first, last)
	if err != nil {
		t.Fatalf("读取调度遥测失败: %v", err)
	}
	if len(rows) != 13 {
		t.Fatalf("期望 13 条遥测, 实际 %d", len(rows))
	}
	var wind int
	for _, r := range rows {
		if r.DUID != "WRWF1" {
			continue
		}
		wind++
		if r.Availability != nil || r.Forecast == nil || *r.Forecast != 40 {
			t.Fatalf("风电遥测可用容量应缺失且预测为 40: %#v", r)
		}
	}
	if wind != 3 {
		t.Fatalf("期望 3 条风电遥测, 实际 %d", wind)
	}
}

func TestRegionIntervals(t *testing.T) {
	rows, err := fixture().RegionIntervals(first, first.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("读取区域汇总失败: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("期望 4 条区域记录, 实际 %d", len(rows))
	}
	if rows[0].Region != "NSW" {
		t.Fatalf("区域编号应去掉末尾数字, 实际 %q", rows[0].Region)
	}
}

func TestRegionIntervalsKeepPhysicalRun(t *testing.T) {
	dir := t.TempDir()
	body := "SETTLEMENTDATE,REGIONID,INTERVENTION,TOTALDEMAND,RRP\n" +
		"2022/01/01 02:00:00,NSW1,0,1000,50\n" +
		"2022/01/01 02:00:00,NSW1,1,1000,300\n" +
		"2022/01/01 02:00:00,SA1,,400,80\n"
	if err := os.WriteFile(filepath.Join(dir, "DISPATCHREGIONSUM_202201.csv"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := New(dir).RegionIntervals(first, last)
	if err != nil {
		t.Fatalf("读取区域汇总失败: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("干预运行记录应被丢弃, 期望 2 条, 实际 %d", len(rows))
	}
	if rows[0].Region != "NSW" || rows[0].RRP != 50 || rows[1].Region != "SA" {
		t.Fatalf("应保留物理运行记录: %#v", rows)
	}
}

func TestRegistration(t *testing.T) {
	rows, err := fixture().Registration()
	if err != nil {
		t.Fatalf("读取注册信息失败: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("期望 5 条注册记录, 实际 %d", len(rows))
	}
	if rows[1].Technology != "Open Cycle Gas turbines (OCGT)" || rows[1].StationName != "Hallett Power Station" {
		t.Fatalf("注册字段解析错误: %#v", rows[1])
	}
}

func TestMissingFilesYieldNothing(t *testing.T) {
	offers, err := New(t.TempDir()).VolumeOffers(first, last)
	if err != nil || len(offers) != 0 {
		t.Fatalf("目录为空时应返回空结果, 实际 %d 条, err=%v", len(offers), err)
	}
}

func TestBadTimestampReportsLocation(t *testing.T) {
	dir := t.TempDir()
	body := "SETTLEMENTDATE,REGIONID,TOTALDEMAND,RRP\nnot-a-date,NSW1,1,2\n"
	if err := os.WriteFile(filepath.Join(dir, "DISPATCHREGIONSUM.csv"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(dir).RegionIntervals(first, last)
	if err == nil || !strings.Contains(err.Error(), "DISPATCHREGIONSUM.csv:2") {
		t.Fatalf("错误信息应包含文件与行号, 实际 %v", err)
	}
}
