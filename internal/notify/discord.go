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

// DiscordSender delivers settlement events via a Discord webhook, rendered
// as embeds colored by event type.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Embed colors: green for value movement, blue for condition lifecycle,
// orange for cancellations.
var embedColors = map[string]int{
	domain.EventTradeSettled:      0x2ecc71,
	domain.EventPositionSplit:     0x2ecc71,
	domain.EventPositionMerged:    0x2ecc71,
	domain.EventPositionRedeemed:  0x2ecc71,
	domain.EventConditionPrepared: 0x3498db,
	domain.EventPairRegistered:    0x3498db,
	domain.EventConditionResolved: 0x3498db,
	domain.EventOrderCancelled:    0xe67e22,
}

const defaultEmbedColor = 0x95a5a6

// Send posts the event to the webhook as a single embed.
func (d *DiscordSender) Send(ctx context.Context, ev domain.Event) error {
	color, ok := embedColors[ev.Type]
	if !ok {
		color = defaultEmbedColor
	}

	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       eventTitle(ev),
			"description": strings.Join(eventLines(ev), "\n"),
			"color":       color,
			"timestamp":   ev.Timestamp.UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
