package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerStore provides read access to account balances. Mutation happens
// exclusively through StateStore.ApplySettlement.
type LedgerStore interface {
	// Balance returns the current balance for (account, asset). Accounts or
	// assets never seen before have a zero balance, not an error.
	Balance(ctx context.Context, account common.Address, asset AssetID) (*big.Int, error)
}

// ConditionStore persists prepared conditions, their payout vectors, and
// registered position pairs.
type ConditionStore interface {
	// PutCondition stores a newly prepared condition. Returns
	// ErrAlreadyPrepared when the condition ID already exists.
	PutCondition(ctx context.Context, c Condition) error

	// GetCondition returns the condition with the given ID, or
	// ErrUnknownCondition.
	GetCondition(ctx context.Context, id ConditionID) (Condition, error)

	// GetConditionByQuestion returns the condition prepared for the given
	// question identifier, or ErrUnknownCondition.
	GetConditionByQuestion(ctx context.Context, questionID common.Hash) (Condition, error)

	// SetPayouts records the payout vector for a condition exactly once.
	// Returns ErrUnknownCondition when the condition does not exist and
	// ErrAlreadyResolved when a vector was already set.
	SetPayouts(ctx context.Context, id ConditionID, payouts []uint64, at time.Time) error

	// PutPair registers the complementary yes/no positions for a condition.
	// Returns ErrAlreadyRegistered when a pair exists for the condition.
	PutPair(ctx context.Context, p PositionPair) error

	// PairByToken returns the pair containing the given position token, or
	// ErrNotFound.
	PairByToken(ctx context.Context, token PositionID) (PositionPair, error)
}

// WatermarkStore tracks the minimum valid salt per (maker, token, side).
type WatermarkStore interface {
	// Watermark returns the current minimum valid salt, zero for keys never
	// advanced.
	Watermark(ctx context.Context, key WatermarkKey) (*big.Int, error)

	// Filled returns the cumulative filled quantity for an order digest,
	// zero for orders never partially consumed.
	Filled(ctx context.Context, orderDigest common.Hash) (*big.Int, error)
}

// SettlementLog provides read access to applied settlements for
// observability and archival.
type SettlementLog interface {
	// ListSettlementsBefore returns settlements created strictly before the
	// cutoff, oldest first, up to limit (0 = no limit).
	ListSettlementsBefore(ctx context.Context, before time.Time, limit int) ([]Settlement, error)
}

// StateStore is the full persisted state of the settlement core: balances,
// conditions, watermarks, fills, and the settlement log. ApplySettlement is
// the single mutation path for balance-bearing state; it must be atomic and
// must reject the whole batch when any debit would push a balance below
// zero (ErrInsufficientBalance) or any credit above 2^256-1 (ErrOverflow).
type StateStore interface {
	LedgerStore
	ConditionStore
	WatermarkStore
	SettlementLog

	ApplySettlement(ctx context.Context, s Settlement) error
}

// SignalBus publishes settlement-relevant events for downstream consumers
// (WebSocket hub, notifiers, audit pipelines).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is a single durable message read from a bus stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// LockManager provides distributed locks for deployments where several
// nodes share one durable store and settlement writes must be serialized.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned release
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads archive objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
