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

	"kryptrix/internal/anomaly"
	"kryptrix/internal/arbitrage"
)

// Notification summarises one cycle's findings for a symbol.
type Notification struct {
	Symbol    string
	Bucket    time.Time
	Anomalies []anomaly.Flag
	Arbitrage []arbitrage.Opportunity
}

// Notifier delivers detected-signal notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram channel.
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

// Notify sends the rendered findings via sendMessage.
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
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("bucket", note.Bucket).
		Str("symbol", note.Symbol).
		Int("anomalies", len(note.Anomalies)).
		Int("arbitrage", len(note.Arbitrage)).
		Msg("alert dispatched")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Kryptrix Alert] %s\n", note.Symbol))
	builder.WriteString(fmt.Sprintf("Cycle: %s UTC\n", note.Bucket.UTC().Format(time.RFC3339)))

	for _, flag := range note.Anomalies {
		builder.WriteString(fmt.Sprintf("Anomaly %s at %s: severity %.2f (value %.2f)\n",
			flag.Kind,
			flag.Timestamp.UTC().Format(time.RFC3339),
			flag.Severity,
			flag.TriggeringValue,
		))
	}

	for _, opp := range note.Arbitrage {
		builder.WriteString(fmt.Sprintf("Arbitrage %s: spread %s%% (cex %s / dex %s)\n",
			opp.Direction,
			opp.SpreadPct.StringFixed(3),
			opp.CexPrice.StringFixed(4),
			opp.DexPrice.StringFixed(4),
		))
	}

	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
