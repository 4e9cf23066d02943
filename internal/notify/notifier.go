// Package notify delivers settlement events to operator channels (Telegram,
// Discord). Events are filtered by type so operators receive only the
// lifecycle transitions they care about, and each sender renders the event
// payload in its own format.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Sender is one delivery channel for settlement events.
type Sender interface {
	// Send delivers the event. Senders render the payload themselves.
	Send(ctx context.Context, ev domain.Event) error
	// Name identifies the sender in logs (e.g. "telegram").
	Name() string
}

// Notifier fans settlement events out to the registered senders, filtered
// by event type.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty allows all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// events whose type appears in events are forwarded; an empty list forwards
// everything. Configured names that match no published event type are
// logged and dropped, since they would silently filter nothing.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	logger = logger.With(slog.String("component", "notifier"))

	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !slices.Contains(domain.KnownEventTypes, e) {
			logger.Warn("ignoring unknown event type in notify filter",
				slog.String("event", e),
			)
			continue
		}
		allowed[e] = true
	}

	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger,
	}
}

// Notify delivers the event to every sender if its type passes the filter.
// Sender failures are collected and combined; one failing channel does not
// block the others.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", ev.Type),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, ev); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", ev.Type),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// eventTitle renders a human-readable title from the event type, e.g.
// "trade_settled" becomes "Trade settled".
func eventTitle(ev domain.Event) string {
	title := strings.ReplaceAll(ev.Type, "_", " ")
	if title == "" {
		return "Settlement event"
	}
	return strings.ToUpper(title[:1]) + title[1:]
}

// eventLines renders the event payload as sorted "key: value" lines so the
// same event produces the same message on every run.
func eventLines(ev domain.Event) []string {
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, ev.Data[k]))
	}
	return lines
}
