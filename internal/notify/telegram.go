package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// TelegramSender delivers settlement events via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the event to the configured chat: bold title, one payload field
// per line, the event timestamp last.
func (t *TelegramSender) Send(ctx context.Context, ev domain.Event) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n", eventTitle(ev))
	for _, line := range eventLines(ev) {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "_%s_", ev.Timestamp.UTC().Format(time.RFC3339))

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       sb.String(),
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

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
