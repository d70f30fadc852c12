package pricebins

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	table := Default()

	cases := []struct {
		price float64
		want  string
	}{
		{-1000, "[-1000, -100)"},
		{-100, "[-100, 0)"},
		{-0.85, "[-100, 0)"},
		{0, "[0, 50)"},
		{49.999, "[0, 50)"},
		{15500, "[10000, 20000]"},
		{20000, "[10000, 20000]"},
	}
	for _, tc := range cases {
		bin, err := table.Classify(tc.price)
		if err != nil {
			t.Fatalf("价格 %v 不应越界: %v", tc.price, err)
		}
		if bin.Name != tc.want {
			t.Fatalf("价格 %v 期望落入 %s, 实际 %s", tc.price, tc.want, bin.Name)
		}
	}
}

func TestClassifyOutOfRange(t *testing.T) {
	table := Default()
	for _, price := range []float64{-1000.01, 20000.5} {
		_, err := table.Classify(price)
		var oor *OutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("价格 %v 应返回 OutOfRangeError, 实际 %v", price, err)
		}
		if oor.Price != price {
			t.Fatalf("错误中的价格不正确: %v", oor.Price)
		}
	}
}

func TestBinsAreContiguous(t *testing.T) {
	bins := Default().Bins()
	for i := 1; i < len(bins); i++ {
		if bins[i].Lower != bins[i-1].Upper {
			t.Fatalf("区间 %s 与 %s 之间存在缺口或重叠", bins[i-1].Name, bins[i].Name)
		}
		if bins[i-1].Closed {
			t.Fatalf("只有最后一个区间应为闭区间: %s", bins[i-1].Name)
		}
	}
	if !bins[len(bins)-1].Closed {
		t.Fatal("最后一个区间应包含上界")
	}

	// every probe lands in exactly one bin
	for p := -1000.0; p <= 20000; p += 12.5 {
		hits := 0
		for _, b := range bins {
			if b.Contains(p) {
				hits++
			}
		}
		if hits != 1 {
			t.Fatalf("价格 %v 命中 %d 个区间", p, hits)
		}
	}
}

func TestNewRejectsBadEdges(t *testing.T) {
	if _, err := New([]float64{1}); err == nil {
		t.Fatal("单个边界应报错")
	}
	if _, err := New([]float64{0, 10, 10}); err == nil {
		t.Fatal("非严格递增边界应报错")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bins.yaml")
	if err := os.WriteFile(path, []byte("edges: [-500, 0, 300]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	names := table.Names()
	if len(names) != 2 || names[0] != "[-500, 0)" || names[1] != "[0, 300]" {
		t.Fatalf("区间名称不正确: %v", names)
	}
	if table.Order("[0, 300]") != 1 || table.Order("nope") != -1 {
		t.Fatal("Order 结果不正确")
	}
}
