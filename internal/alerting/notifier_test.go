package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bidstack/internal/query"
)

var (
	windowStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2022, 1, 31, 23, 55, 0, 0, time.UTC)
)

func testNote() Notification {
	divergence := &query.BackendDivergenceError{Operation: "aggregate_bids", Left: "postgres", Right: "memory", Detail: "bin [0, 50) volume 10 vs 12"}
	q := query.BidQuery{
		Filter: query.Filter{Regions: []string{"NSW", "QLD"}, Start: windowStart, End: windowEnd, Resolution: query.Hourly},
		Basis:  query.Adjusted,
	}
	return FromDivergence(divergence, q, query.DefaultTolerance, windowEnd)
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "aggregate_bids") {
		t.Fatalf("text 应包含出错的查询: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderMessage(t *testing.T) {
	text := renderMessage(testNote())
	for _, want := range []string{
		"Backends: postgres vs memory",
		"Window: 2022-01-01T00:00:00Z .. 2022-01-31T23:55:00Z",
		"regions=NSW,QLD",
		"dispatch=*",
		"Tolerance: 0.000001 (relative)",
		"bin [0, 50) volume 10 vs 12",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, text)
		}
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
