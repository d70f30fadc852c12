package bids

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"bidstack/internal/market"
)

var (
	day   = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	slot1 = time.Date(2022, 1, 1, 1, 55, 0, 0, time.UTC)
	slot2 = time.Date(2022, 1, 1, 2, 0, 0, 0, time.UTC)
)

func band(n int, price, volume float64) market.BidBand {
	return market.BidBand{Interval: slot2, DUID: "U1", Band: n, Price: price, Volume: volume}
}

func sumAdjusted(bands []market.BidBand) float64 {
	total := 0.0
	for _, b := range bands {
		total += b.VolumeAdjusted
	}
	return total
}

func TestAdjustMostExpensiveFirst(t *testing.T) {
	in := []market.BidBand{band(1, -1000, 3000), band(2, -55.03, 45), band(3, -0.85, 74)}
	out := Adjust(in, market.Float(100))

	got := []float64{out[0].VolumeAdjusted, out[1].VolumeAdjusted, out[2].VolumeAdjusted}
	want := []float64{100, 0, 0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("调整结果错误: 期望 %v, 实际 %v", want, got)
	}
	if in[0].VolumeAdjusted != 0 {
		t.Fatal("Adjust 不应修改输入切片")
	}
}

func TestAdjustInvariants(t *testing.T) {
	in := []market.BidBand{band(1, 10, 40), band(2, 300, 25.5), band(3, 300, 10), band(4, 14000, 60.25)}
	raw := 40 + 25.5 + 10 + 60.25

	for _, avail := range []float64{0.5, 20, 75.25, 100, raw, raw + 50} {
		out := Adjust(in, market.Float(avail))
		total := sumAdjusted(out)
		if total > avail+1e-9 {
			t.Fatalf("可用容量 %v: 调整后总量 %v 超出", avail, total)
		}
		if raw >= avail && math.Abs(total-avail) > 1e-9 {
			t.Fatalf("可用容量 %v: 原始总量超出时应恰好等于可用容量, 实际 %v", avail, total)
		}
		if raw <= avail {
			for i := range out {
				if out[i].VolumeAdjusted != out[i].Volume {
					t.Fatalf("可用容量 %v: 未超出时应保持原始量", avail)
				}
			}
		}
		for _, b := range out {
			if b.VolumeAdjusted < 0 || b.VolumeAdjusted > b.Volume {
				t.Fatalf("调整量越界: %#v", b)
			}
		}
	}
}

func TestAdjustTiesUseBandDescending(t *testing.T) {
	in := []market.BidBand{band(2, 300, 10), band(3, 300, 10)}
	out := Adjust(in, market.Float(15))
	if out[1].VolumeAdjusted != 5 || out[0].VolumeAdjusted != 10 {
		t.Fatalf("同价时应先削减编号较大的档位: %#v", out)
	}
}

func TestAdjustAvailabilityPolicies(t *testing.T) {
	in := []market.BidBand{band(1, 10, 40), band(2, 20, 60)}

	uncapped := Adjust(in, nil)
	if sumAdjusted(uncapped) != 100 {
		t.Fatal("缺失可用容量应视为不设上限")
	}
	nan := Adjust(in, market.Float(math.NaN()))
	if sumAdjusted(nan) != 100 {
		t.Fatal("NaN 可用容量应视为缺失")
	}
	zero := Adjust(in, market.Float(0))
	if sumAdjusted(zero) != 0 {
		t.Fatal("可用容量为 0 时应全部清零")
	}
	negative := Adjust(in, market.Float(-5))
	if sumAdjusted(negative) != 0 {
		t.Fatal("可用容量为负时应全部清零")
	}
}

func fixtures() ([]PriceOffer, []VolumeOffer, []Telemetry) {
	prices := []PriceOffer{
		{TradingDay: day, DUID: "U1", BidType: EnergyBid, Prices: [Bands]float64{-1000, -55.03, -0.85, 50, 100, 200, 300, 500, 1000, 15000}},
		{TradingDay: day, DUID: "U2", BidType: EnergyBid, Prices: [Bands]float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}},
		{TradingDay: day, DUID: "U1", BidType: "RAISE6SEC"},
	}
	volumes := []VolumeOffer{
		{Interval: slot2, TradingDay: day, DUID: "U1", BidType: EnergyBid, Volumes: [Bands]float64{3000, 45, 74}, MaxAvail: market.Float(120), ROCUp: 3, ROCDown: 4, PASAAvailability: 150},
		{Interval: slot1, TradingDay: day, DUID: "U1", BidType: EnergyBid, Volumes: [Bands]float64{10}, MaxAvail: market.Float(120), ROCUp: 3, ROCDown: 4, PASAAvailability: 150},
		{Interval: slot2, TradingDay: day, DUID: "U2", BidType: EnergyBid, Volumes: [Bands]float64{5, 0, 5}},
		{Interval: slot2, TradingDay: day, DUID: "U3", BidType: EnergyBid, Volumes: [Bands]float64{5}},
		{Interval: slot2, TradingDay: day, DUID: "U1", BidType: "RAISE6SEC", Volumes: [Bands]float64{1}},
	}
	telemetry := []Telemetry{
		{Interval: slot1, DUID: "U1", Availability: market.Float(90), InitialMW: 60, RampUpRate: 120, RampDownRate: 240},
		{Interval: slot2, DUID: "U1", Availability: market.Float(80), InitialMW: 70, RampUpRate: 120, RampDownRate: 240},
		{Interval: slot2, DUID: "U1", Intervention: 1, Availability: market.Float(100), InitialMW: 75, RampUpRate: 120, RampDownRate: 240},
		{Interval: slot2, DUID: "U2", InitialMW: 0},
	}
	return prices, volumes, telemetry
}

func TestNormalize(t *testing.T) {
	prices, volumes, telemetry := fixtures()
	n := Normalizer{}
	got, summary := n.Normalize(prices, volumes, telemetry)

	if summary.MissingTelemetry != 0 || summary.MissingPrice != 1 {
		t.Fatalf("U3 没有价格, 应计入 MissingPrice: %#v", summary)
	}
	if summary.VolumeOffers != 4 {
		t.Fatalf("非 ENERGY 报价应被忽略: %d", summary.VolumeOffers)
	}
	// U1 slot1: 1 band, U1 slot2: 3 bands, U2 slot2: 2 bands
	if len(got.Bands) != 6 {
		t.Fatalf("期望 6 个档位, 实际 %d", len(got.Bands))
	}
	for _, b := range got.Bands {
		if b.Volume <= 0 {
			t.Fatalf("零量档位应被剔除: %#v", b)
		}
		if b.OnHour != b.Interval.Equal(slot2) {
			t.Fatalf("整点标记错误: %#v", b)
		}
	}
	if got.Bands[0].Interval != slot1 {
		t.Fatal("结果应按时间排序")
	}

	avail := got.Availability[market.IntervalKey{Interval: slot2, DUID: "U1"}]
	if avail == nil || *avail != 100 {
		t.Fatalf("应采用干预调度结果的可用容量, 实际 %v", avail)
	}
	if got.Availability[market.IntervalKey{Interval: slot2, DUID: "U2"}] != nil {
		t.Fatal("U2 无可用容量数据应为 nil")
	}
}

func TestNormalizeMissingTelemetry(t *testing.T) {
	prices, volumes, _ := fixtures()
	_, summary := Normalizer{}.Normalize(prices, volumes[:1], nil)
	if summary.MissingTelemetry != 1 || len(summary.Errors) != 1 {
		t.Fatalf("缺失遥测应计数并记录错误: %#v", summary)
	}
	var missing *MissingTelemetryError
	if !errors.As(summary.Errors[0], &missing) || missing.DUID != "U1" {
		t.Fatalf("错误类型不正确: %v", summary.Errors[0])
	}
}

func TestPipelineIdempotent(t *testing.T) {
	prices, volumes, telemetry := fixtures()
	run := func() []market.BidBand {
		n, _ := Normalizer{}.Normalize(prices, volumes, telemetry)
		return AdjustAll(n.Bands, n.Availability)
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("重复处理相同输入应得到相同结果")
	}

	var total float64
	for _, b := range first {
		if b.DUID == "U1" && b.Interval.Equal(slot2) {
			total += b.VolumeAdjusted
		}
	}
	if total != 100 {
		t.Fatalf("U1 调整后总量应为 100, 实际 %v", total)
	}
}

func TestAvailabilityRule(t *testing.T) {
	if got := Availability(nil, market.Float(100), market.Float(60), true); *got != 60 {
		t.Fatalf("可变出力机组应取预测与报价可用容量较小者, 实际 %v", *got)
	}
	if got := Availability(nil, market.Float(100), market.Float(60), false); *got != 100 {
		t.Fatalf("非可变出力机组应等于报价可用容量, 实际 %v", *got)
	}
	if got := Availability(market.Float(42), market.Float(100), nil, false); *got != 42 {
		t.Fatalf("上报的可用容量优先, 实际 %v", *got)
	}
	if Availability(nil, nil, nil, true) != nil {
		t.Fatal("无任何数据时应为 nil")
	}
}

func TestBuildDispatch(t *testing.T) {
	_, volumes, telemetry := fixtures()
	records, summary := Normalizer{}.BuildDispatch(volumes, telemetry)

	if len(records) != 1 {
		t.Fatalf("只有 U1 slot1 有下一时段遥测, 实际 %d 条", len(records))
	}
	if summary.TrailingIntervals != 2 {
		t.Fatalf("U1 slot2 与 U2 slot2 应计为末尾时段: %#v", summary)
	}
	rec := records[0]
	if rec.FinalMW != 75 {
		t.Fatalf("FINALMW 应取下一时段的 INITIALMW, 实际 %v", rec.FinalMW)
	}
	if rec.AsBidRampUpMaxAvail != 75 || rec.AsBidRampDownMinAvail != 40 {
		t.Fatalf("报价爬坡计算错误: %#v", rec)
	}
	if rec.RampUpMaxAvail != 70 || rec.RampDownMinAvail != 40 {
		t.Fatalf("有效爬坡计算错误: %#v", rec)
	}
	if rec.MaxAvail != 120 || *rec.Availability != 90 {
		t.Fatalf("可用容量字段错误: %#v", rec)
	}
}
