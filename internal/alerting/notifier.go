// Package alerting pushes high-strength power alerts to external chat
// channels. It rides the broadcast bus: the notifier is just another
// subscriber, so a delivery failure never touches the write path.
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

	"flowstore/internal/eventbus"
	"flowstore/internal/storage"
)

// Notifier delivers one power alert to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert storage.PowerAlert) error
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
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

// Notify posts the alert text through the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, alert storage.PowerAlert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
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
		return fmt.Errorf("unexpected telegram status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("symbol", alert.Symbol).
		Int("strength", alert.Strength).
		Msg("alert notification sent (telegram)")
	return nil
}

func renderMessage(alert storage.PowerAlert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Power Alert] %s\n", alert.Symbol))
	builder.WriteString(fmt.Sprintf("Date: %s\n", alert.AlertDate.UTC().Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Strength: %d", alert.Strength))
	if alert.StrengthIncrease > 0 {
		builder.WriteString(fmt.Sprintf(" (+%d)", alert.StrengthIncrease))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Calls: %d  Unusual: %d  Dark pool: %d\n",
		alert.NumCalls, alert.NumUnusual, alert.NumDarkPool))
	builder.WriteString(fmt.Sprintf("First spot: %s\n", alert.FirstSpot.StringFixed(2)))
	if alert.ContractType != "" {
		builder.WriteString(fmt.Sprintf("Contract: %s %s", alert.ContractType, alert.ContractStrike.StringFixed(2)))
		if alert.ContractExpiry != nil {
			builder.WriteString(" exp " + alert.ContractExpiry.Format("2006-01-02"))
		}
		builder.WriteString("\n")
	}
	if alert.Broken {
		builder.WriteString("Status: broken\n")
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)

// BusHandler adapts a notifier into a broadcast subscriber that reacts to
// power alerts at or above minStrength and ignores every other record type.
func BusHandler(n Notifier, minStrength int, timeout time.Duration, logger zerolog.Logger) eventbus.Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := logger.With().Str("component", "alert_handler").Logger()
	return func(evt eventbus.Event) {
		alert, ok := evt.Record.(storage.PowerAlert)
		if !ok {
			return
		}
		if alert.Strength < minStrength {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := n.Notify(ctx, alert); err != nil {
			log.Error().Err(err).
				Str("symbol", alert.Symbol).
				Msg("alert notification failed")
		}
	}
}
