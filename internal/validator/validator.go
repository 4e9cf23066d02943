// Package validator checks signed orders before they reach the matcher:
// deadline, replay watermark, and EIP-712 signature, in that order,
// short-circuiting on the first failure.
package validator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	settlecrypto "github.com/alanyoungcy/settlecore/internal/crypto"
	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Validator verifies order authenticity against one chain and matcher
// deployment. It never generates signatures.
type Validator struct {
	store   domain.WatermarkStore
	chainID int64
	matcher common.Address
}

// New creates a Validator bound to the given chain ID and matcher address.
func New(store domain.WatermarkStore, chainID int64, matcher common.Address) *Validator {
	return &Validator{store: store, chainID: chainID, matcher: matcher}
}

// Digest returns the order's EIP-712 digest under this validator's domain.
// The digest doubles as the order's identity for fill tracking.
func (v *Validator) Digest(o domain.Order) common.Hash {
	return settlecrypto.OrderDigest(o, v.chainID, v.matcher)
}

// Validate runs the order checks, using the caller-supplied current time
// for the deadline comparison:
//
//  1. quantity and price present, else ErrBadSignature
//  2. deadline >= now, else ErrExpired
//  3. salt >= watermark(maker, token, side), else ErrStale
//  4. recovered signer == maker, else ErrBadSignature
func (v *Validator) Validate(ctx context.Context, o domain.Order, now time.Time) error {
	if o.Quantity == nil || o.Price == nil {
		return fmt.Errorf("validator: order missing quantity or price: %w", domain.ErrBadSignature)
	}
	if o.Deadline == nil || o.Deadline.Cmp(big.NewInt(now.Unix())) < 0 {
		return fmt.Errorf("validator: deadline %v: %w", o.Deadline, domain.ErrExpired)
	}

	watermark, err := v.store.Watermark(ctx, domain.WatermarkKey{
		Maker:   o.Maker,
		TokenID: o.TokenID,
		Side:    o.Side,
	})
	if err != nil {
		return fmt.Errorf("validator: load watermark: %w", err)
	}
	if o.Salt == nil || o.Salt.Cmp(watermark) < 0 {
		return fmt.Errorf("validator: salt %v below watermark %v: %w", o.Salt, watermark, domain.ErrStale)
	}

	signer, err := settlecrypto.RecoverSigner(o, v.chainID, v.matcher)
	if err != nil {
		return fmt.Errorf("validator: %w: %v", domain.ErrBadSignature, err)
	}
	if signer != o.Maker {
		return fmt.Errorf("validator: recovered %s, expected %s: %w", signer, o.Maker, domain.ErrBadSignature)
	}

	return nil
}
