package domain

import "time"

// Bus channel names for settlement-relevant events.
const (
	ChannelSettlements = "settlements"
	ChannelConditions  = "conditions"

	StreamSettlements = "stream:settlements"
)

// Event is the envelope published on the signal bus and forwarded to
// WebSocket subscribers. Payload layout depends on Type.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	EventConditionPrepared = "condition_prepared"
	EventPairRegistered    = "pair_registered"
	EventConditionResolved = "condition_resolved"
	EventTradeSettled      = "trade_settled"
	EventPositionSplit     = "position_split"
	EventPositionMerged    = "position_merged"
	EventPositionRedeemed  = "position_redeemed"
	EventOrderCancelled    = "order_cancelled"
)

// KnownEventTypes lists every event type the core publishes, in lifecycle
// order. Consumers use it to validate configured event filters.
var KnownEventTypes = []string{
	EventConditionPrepared,
	EventPairRegistered,
	EventConditionResolved,
	EventTradeSettled,
	EventPositionSplit,
	EventPositionMerged,
	EventPositionRedeemed,
	EventOrderCancelled,
}
