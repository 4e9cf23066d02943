package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementKind classifies what produced a batch of balance mutations.
type SettlementKind string

const (
	SettlementKindTrade    SettlementKind = "trade"
	SettlementKindSplit    SettlementKind = "split"
	SettlementKindMerge    SettlementKind = "merge"
	SettlementKindRedeem   SettlementKind = "redeem"
	SettlementKindCredit   SettlementKind = "credit"
	SettlementKindDebit    SettlementKind = "debit"
	SettlementKindTransfer SettlementKind = "transfer"
	SettlementKindCancel   SettlementKind = "cancel"
)

// BalanceDelta is a single signed balance mutation. Negative amounts are
// debits, positive amounts credits. A delta batch is applied atomically:
// either every delta lands or none do.
type BalanceDelta struct {
	Account common.Address
	Asset   AssetID
	Amount  *big.Int
}

// Debit builds a negative delta for amount (which must be non-negative).
func Debit(account common.Address, asset AssetID, amount *big.Int) BalanceDelta {
	return BalanceDelta{Account: account, Asset: asset, Amount: new(big.Int).Neg(amount)}
}

// Credit builds a positive delta for amount (which must be non-negative).
func Credit(account common.Address, asset AssetID, amount *big.Int) BalanceDelta {
	return BalanceDelta{Account: account, Asset: asset, Amount: new(big.Int).Set(amount)}
}

// WatermarkUpdate raises a replay watermark to MinSalt. Updates are
// monotonic: a store never lowers an existing watermark.
type WatermarkUpdate struct {
	Key     WatermarkKey
	MinSalt *big.Int
}

// FillUpdate records the new cumulative filled quantity of an order,
// keyed by its EIP-712 digest.
type FillUpdate struct {
	OrderDigest common.Hash
	Filled      *big.Int
}

// Settlement is the atomic unit of state mutation: all balance deltas,
// watermark advances, and fill updates from one public operation. Stores
// apply the whole batch or none of it.
type Settlement struct {
	ID         string
	Kind       SettlementKind
	Deltas     []BalanceDelta
	Watermarks []WatermarkUpdate
	Fills      []FillUpdate
	CreatedAt  time.Time
}
