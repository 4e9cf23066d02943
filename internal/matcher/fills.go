package matcher

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/validator"
)

// fillTracker accumulates fill consumption for the orders of one match
// call. Stored cumulative fills are loaded lazily per order digest, so an
// order appearing on several legs of the same call is charged for all of
// them together.
type fillTracker struct {
	store     domain.WatermarkStore
	validator *validator.Validator
	entries   map[common.Hash]*fillEntry
	order     []common.Hash // digest insertion order, for deterministic output
}

type fillEntry struct {
	order    domain.Order
	previous *big.Int // persisted fill before this call
	consumed *big.Int // added by this call
}

func newFillTracker(store domain.WatermarkStore, v *validator.Validator) *fillTracker {
	return &fillTracker{
		store:     store,
		validator: v,
		entries:   make(map[common.Hash]*fillEntry),
	}
}

// consume charges quantity units against the order's unfilled remainder,
// failing with ErrInvalidFill when the order would be overfilled.
func (t *fillTracker) consume(ctx context.Context, o domain.Order, quantity *big.Int) error {
	digest := t.validator.Digest(o)
	entry, ok := t.entries[digest]
	if !ok {
		previous, err := t.store.Filled(ctx, digest)
		if err != nil {
			return fmt.Errorf("load fill: %w", err)
		}
		entry = &fillEntry{order: o, previous: previous, consumed: new(big.Int)}
		t.entries[digest] = entry
		t.order = append(t.order, digest)
	}

	total := new(big.Int).Add(entry.previous, entry.consumed)
	total.Add(total, quantity)
	if total.Cmp(o.Quantity) > 0 {
		return fmt.Errorf("fill %v exceeds order quantity %v (already filled %v): %w",
			quantity, o.Quantity, new(big.Int).Add(entry.previous, entry.consumed), domain.ErrInvalidFill)
	}
	entry.consumed.Add(entry.consumed, quantity)
	return nil
}

// updates returns the new cumulative fill for every touched order.
func (t *fillTracker) updates() []domain.FillUpdate {
	out := make([]domain.FillUpdate, 0, len(t.order))
	for _, digest := range t.order {
		e := t.entries[digest]
		out = append(out, domain.FillUpdate{
			OrderDigest: digest,
			Filled:      new(big.Int).Add(e.previous, e.consumed),
		})
	}
	return out
}

// watermarks returns replay-watermark advances for every order this call
// fills to completion. The watermark moves to salt+1, so a partially
// filled salt stays usable until exhausted.
func (t *fillTracker) watermarks() []domain.WatermarkUpdate {
	var out []domain.WatermarkUpdate
	for _, digest := range t.order {
		e := t.entries[digest]
		total := new(big.Int).Add(e.previous, e.consumed)
		if total.Cmp(e.order.Quantity) != 0 {
			continue
		}
		out = append(out, domain.WatermarkUpdate{
			Key: domain.WatermarkKey{
				Maker:   e.order.Maker,
				TokenID: e.order.TokenID,
				Side:    e.order.Side,
			},
			MinSalt: new(big.Int).Add(e.order.Salt, big.NewInt(1)),
		})
	}
	return out
}
