package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bidstack/internal/query"
)

// Notification 封装一次后端结果不一致的上下文。
type Notification struct {
	DetectedAt  time.Time
	Operation   string
	Left        string
	Right       string
	Detail      string
	WindowStart time.Time
	WindowEnd   time.Time
	Filter      string
	Tolerance   decimal.Decimal
}

// FromDivergence builds a notification for a failed parity check of q.
func FromDivergence(err *query.BackendDivergenceError, q query.BidQuery, tolerance float64, at time.Time) Notification {
	return Notification{
		DetectedAt:  at,
		Operation:   err.Operation,
		Left:        err.Left,
		Right:       err.Right,
		Detail:      err.Detail,
		WindowStart: q.Start,
		WindowEnd:   q.End,
		Filter:      describeFilter(q),
		Tolerance:   decimal.NewFromFloat(tolerance),
	}
}

func describeFilter(q query.BidQuery) string {
	parts := []string{
		"resolution=" + orAll(string(q.Resolution)),
		"basis=" + orAll(string(q.Basis)),
		"regions=" + orAll(strings.Join(q.Regions, ",")),
		"dispatch=" + orAll(q.DispatchType),
		"tech=" + orAll(strings.Join(q.TechTypes, ",")),
	}
	return strings.Join(parts, " ")
}

func orAll(v string) string {
	if v == "" {
		return "*"
	}
	return v
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("operation", note.Operation).
		Str("left", note.Left).
		Str("right", note.Right).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[bidstack parity alert]\n")
	builder.WriteString(fmt.Sprintf("Detected: %s UTC\n", note.DetectedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Operation: %s\n", note.Operation))
	builder.WriteString(fmt.Sprintf("Backends: %s vs %s\n", note.Left, note.Right))
	builder.WriteString(fmt.Sprintf("Window: %s .. %s\n", note.WindowStart.UTC().Format(time.RFC3339), note.WindowEnd.UTC().Format(time.RFC3339)))
	if note.Filter != "" {
		builder.WriteString(fmt.Sprintf("Filter: %s\n", note.Filter))
	}
	builder.WriteString(fmt.Sprintf("Tolerance: %s (relative)\n", note.Tolerance.String()))
	builder.WriteString(note.Detail)
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
