package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	if cfg.Query.Backend != BackendPostgres || cfg.Ingest.Chunk != "month" || cfg.Logging.Output != "stderr" {
		t.Fatalf("默认值错误: %+v", cfg)
	}
	if cfg.Redis.TTL != 10*time.Minute || cfg.API.RequestTimeout != 30*time.Second {
		t.Fatalf("时长解析错误: %v %v", cfg.Redis.TTL, cfg.API.RequestTimeout)
	}
	bins, err := cfg.PriceBins()
	if err != nil {
		t.Fatalf("默认分档表无效: %v", err)
	}
	if len(bins.Names()) != 11 {
		t.Fatalf("默认分档数量应为 11, 实际 %d", len(bins.Names()))
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	t.Setenv("BIDSTACK_API_LISTEN", ":9090")
	path := writeConfig(t, `
query:
  backend: memory
  tolerance: 0.001
bins:
  edges: [-1000, 0, 300, 15000]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Query.Backend != BackendMemory || cfg.Query.Tolerance != 0.001 {
		t.Fatalf("查询配置错误: %+v", cfg.Query)
	}
	if cfg.API.Listen != ":9090" {
		t.Fatalf("环境变量应覆盖监听地址, 实际 %q", cfg.API.Listen)
	}
	bins, err := cfg.PriceBins()
	if err != nil {
		t.Fatal(err)
	}
	if names := bins.Names(); len(names) != 3 || names[1] != "[0, 300)" {
		t.Fatalf("自定义分档错误: %v", names)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend":  "query:\n  backend: sqlite\n",
		"chunk":    "ingest:\n  chunk: week\n",
		"telegram": "alerting:\n  telegram:\n    enabled: true\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: 非法配置应被拒绝", name)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if cfg.ResolveMaxPoints(0) != 500 || cfg.ResolveMaxPoints(20) != 20 {
		t.Fatal("导出点数解析错误")
	}
}
