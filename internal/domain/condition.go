package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Condition is a yet-to-be-resolved question tied to an oracle. Its ID is
// derived deterministically from (oracle, questionID, slot count); the
// payout vector is absent until the oracle reports and immutable afterwards.
type Condition struct {
	ID           ConditionID
	Oracle       common.Address
	QuestionID   common.Hash
	OutcomeSlots int
	Payouts      []uint64 // nil until reported; length == OutcomeSlots after
	PreparedAt   time.Time
	ResolvedAt   *time.Time
}

// Resolved reports whether the oracle has set the payout vector.
func (c Condition) Resolved() bool { return len(c.Payouts) > 0 }

// PayoutDenominator returns the sum of the payout vector, or zero when the
// condition is unresolved. Payout fraction for slot i is Payouts[i]/denominator.
// The sum is accumulated in a big.Int so extreme vectors cannot wrap.
func (c Condition) PayoutDenominator() *big.Int {
	sum := new(big.Int)
	for _, p := range c.Payouts {
		sum.Add(sum, new(big.Int).SetUint64(p))
	}
	return sum
}

// PositionPair records the complementary yes/no positions of a binary
// condition so the matcher can look up one leg from the other.
type PositionPair struct {
	ConditionID ConditionID
	Yes         PositionID // index set 0b01
	No          PositionID // index set 0b10
}

// Complement returns the opposite token of the pair, and false when the
// given token belongs to neither leg.
func (p PositionPair) Complement(token PositionID) (PositionID, bool) {
	switch token {
	case p.Yes:
		return p.No, true
	case p.No:
		return p.Yes, true
	}
	return PositionID{}, false
}
