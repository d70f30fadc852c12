package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bidstack/internal/config"
	"bidstack/internal/memtable"
	"bidstack/internal/pricebins"
	"bidstack/internal/query"
	"bidstack/internal/rawcache"
	"bidstack/internal/service"
)

const (
	fromTS = "2022-01-01T01:55:00Z"
	toTS   = "2022-01-01T02:00:00Z"
)

func newServer(t *testing.T, bins *pricebins.Table) *Server {
	t.Helper()
	source := rawcache.New(filepath.Join("..", "rawcache", "testdata", "cache"))
	reader, err := memtable.NewReader(source, bins, zerolog.Nop())
	if err != nil {
		t.Fatalf("创建内存后端失败: %v", err)
	}
	queries, err := service.NewQueries(memtable.Name, zerolog.Nop(), reader)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.APIConfig{AllowedOrigins: []string{"*"}, RequestTimeout: 5 * time.Second}
	return New(cfg, queries, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string, params url.Values) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("响应不是 JSON: %s", rec.Body.String())
	}
	return rec, body
}

func span() url.Values {
	return url.Values{"start": {fromTS}, "end": {toTS}}
}

func TestAggregateBidsEndpoint(t *testing.T) {
	s := newServer(t, pricebins.Default())
	rec, body := get(t, s, "/api/v1/bids", span())
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("应返回 CORS 头")
	}
	var rows []query.BinVolume
	if err := json.Unmarshal(body["rows"], &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 || rows[0].Bin != "[-1000, -100)" || rows[0].Volume != 100 {
		t.Fatalf("聚合结果错误: %v", rows)
	}

	params := span()
	params.Set("regions", "SA")
	params.Add("tech_types", "OCGT")
	params.Set("resolution", "hourly")
	params.Set("volume_basis", "raw")
	rec, body = get(t, s, "/api/v1/bids", params)
	if err := json.Unmarshal(body["rows"], &rows); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("过滤查询失败: %d %s", rec.Code, rec.Body.String())
	}
	if len(rows) != 1 || rows[0].Volume != 153 {
		t.Fatalf("整点 OCGT 原始报价应为 153: %v", rows)
	}
}

func TestInvalidFilterIsBadRequest(t *testing.T) {
	s := newServer(t, pricebins.Default())
	params := span()
	params.Set("regions", "NSW1")
	rec, body := get(t, s, "/api/v1/bids", params)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("未知区域应返回 400, 实际 %d", rec.Code)
	}
	if _, ok := body["rows"]; ok {
		t.Fatal("失败的查询不应返回结果")
	}
	if string(body["field"]) != `"regions"` {
		t.Fatalf("应指出出错字段: %s", body["field"])
	}

	rec, _ = get(t, s, "/api/v1/dispatch", url.Values{"start": {"yesterday"}, "end": {toTS}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("非法时间应返回 400, 实际 %d", rec.Code)
	}

	params = span()
	params.Set("backend", "duckdb")
	rec, _ = get(t, s, "/api/v1/prices", params)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("未知后端应返回 400, 实际 %d", rec.Code)
	}
}

func TestOutOfRangePriceIsUnprocessable(t *testing.T) {
	narrow, err := pricebins.New([]float64{-100, 0, 100})
	if err != nil {
		t.Fatal(err)
	}
	s := newServer(t, narrow)
	rec, body := get(t, s, "/api/v1/bids", span())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("超出分档范围应返回 422, 实际 %d", rec.Code)
	}
	if _, ok := body["rows"]; ok {
		t.Fatal("失败的查询不应返回结果")
	}
}

func TestAuxiliaryEndpoints(t *testing.T) {
	s := newServer(t, pricebins.Default())

	rec, body := get(t, s, "/api/v1/tech-types", nil)
	var types []string
	if err := json.Unmarshal(body["rows"], &types); err != nil || rec.Code != http.StatusOK || len(types) != 4 {
		t.Fatalf("技术类型查询失败: %d %s", rec.Code, rec.Body.String())
	}

	rec, body = get(t, s, "/api/v1/stations/duids", url.Values{"stations": {"Hallett Power Station"}})
	var duids []string
	if err := json.Unmarshal(body["rows"], &duids); err != nil || len(duids) != 1 || duids[0] != "AGLHAL" {
		t.Fatalf("电站查询失败: %d %s", rec.Code, rec.Body.String())
	}

	params := span()
	params.Set("regions", "SA")
	rec, body = get(t, s, "/api/v1/units", params)
	var pairs []query.StationUnit
	if err := json.Unmarshal(body["rows"], &pairs); err != nil || len(pairs) != 2 {
		t.Fatalf("机组列表查询失败: %d %s", rec.Code, rec.Body.String())
	}

	rec, body = get(t, s, "/api/v1/prices", span())
	var prices []query.WeightedPrice
	if err := json.Unmarshal(body["rows"], &prices); err != nil || len(prices) != 2 || prices[1].Price != 70 {
		t.Fatalf("价格查询失败: %d %s", rec.Code, rec.Body.String())
	}

	params = span()
	params.Set("duids", "BW01,WRWF1")
	rec, body = get(t, s, "/api/v1/dispatch/units", params)
	var totals []query.DispatchTotals
	if err := json.Unmarshal(body["rows"], &totals); err != nil || len(totals) != 2 {
		t.Fatalf("按机组调度查询失败: %d %s", rec.Code, rec.Body.String())
	}

	rec, body = get(t, s, "/healthz", nil)
	if rec.Code != http.StatusOK || string(body["status"]) != `"healthy"` {
		t.Fatalf("健康检查失败: %d", rec.Code)
	}
}
