package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vitos/crypto_paper_bot/internal/domain"
)

// TelegramNotifier delivers ledger events to a Telegram chat via the Bot
// API. With an empty token it is a no-op, so the bot runs fine without
// Telegram configured. Implements domain.Notifier.
type TelegramNotifier struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether credentials are configured.
func (t *TelegramNotifier) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

func (t *TelegramNotifier) Notify(ctx context.Context, event domain.Event) error {
	if !t.Enabled() {
		return nil
	}
	return t.send(ctx, formatEvent(event))
}

func formatEvent(ev domain.Event) string {
	switch ev.Type {
	case domain.EventPositionOpened:
		return fmt.Sprintf("*BUY %s*\nPrice: $%.6f\nCost: $%.2f",
			ev.Symbol, ev.EntryPrice, ev.Cost)
	case domain.EventPositionPartClose:
		return fmt.Sprintf("*PARTIAL SELL %s*\nExit: $%.6f\nAmount: %.4f\nPnL: $%.2f (%+.2f%%)\nReason: %s",
			ev.Symbol, ev.ExitPrice, ev.Amount, ev.PnL, ev.PnLPercent, ev.Reason)
	default:
		return fmt.Sprintf("*SELL %s*\nEntry: $%.6f\nExit: $%.6f\nPnL: $%.2f (%+.2f%%)\nReason: %s",
			ev.Symbol, ev.EntryPrice, ev.ExitPrice, ev.PnL, ev.PnLPercent, ev.Reason)
	}
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
