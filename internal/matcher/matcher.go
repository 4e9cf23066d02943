// Package matcher implements trade matching and settlement: one taker order
// is crossed against one or more maker orders, settlement transfers are
// computed at each maker's price, and the whole batch is applied to the
// ledger atomically. A failure anywhere leaves state untouched.
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/validator"
)

// Matcher validates orders, computes settlement deltas, and applies them
// through the state store.
type Matcher struct {
	store      domain.StateStore
	validator  *validator.Validator
	collateral domain.AssetID
	bus        domain.SignalBus // optional
	logger     *slog.Logger
}

// New creates a Matcher settling against the given collateral token.
func New(store domain.StateStore, v *validator.Validator, collateral common.Address, bus domain.SignalBus, logger *slog.Logger) *Matcher {
	return &Matcher{
		store:      store,
		validator:  v,
		collateral: domain.CollateralAsset(collateral),
		bus:        bus,
		logger:     logger.With(slog.String("component", "matcher")),
	}
}

var priceScale = big.NewInt(domain.PriceScale)

// MatchOrders settles takerFill units of the taker order against the maker
// orders, maker i contributing makerFills[i] units. Every order must pass
// validation, fills must sum and stay within each order's unfilled
// remainder, and each (taker, maker) pairing must be a legal direct or
// synthetic match whose limit prices cross. Settlement happens at the
// maker's price. On success the applied settlement (with all balance
// deltas) is returned; on any failure no state changes.
func (m *Matcher) MatchOrders(ctx context.Context, taker domain.Order, makers []domain.Order, takerFill *big.Int, makerFills []*big.Int, now time.Time) (domain.Settlement, error) {
	if len(makers) == 0 || len(makers) != len(makerFills) {
		return domain.Settlement{}, fmt.Errorf("matcher: %d makers, %d fills: %w", len(makers), len(makerFills), domain.ErrInvalidFill)
	}
	if takerFill == nil || takerFill.Sign() <= 0 {
		return domain.Settlement{}, fmt.Errorf("matcher: taker fill must be positive: %w", domain.ErrInvalidFill)
	}
	sum := new(big.Int)
	for _, f := range makerFills {
		if f == nil || f.Sign() <= 0 {
			return domain.Settlement{}, fmt.Errorf("matcher: maker fills must be positive: %w", domain.ErrInvalidFill)
		}
		sum.Add(sum, f)
	}
	if sum.Cmp(takerFill) != 0 {
		return domain.Settlement{}, fmt.Errorf("matcher: maker fills sum %v != taker fill %v: %w", sum, takerFill, domain.ErrInvalidFill)
	}

	// Validate every order before any settlement math.
	if err := m.validator.Validate(ctx, taker, now); err != nil {
		return domain.Settlement{}, fmt.Errorf("matcher: taker: %w", err)
	}
	for i, mk := range makers {
		if err := m.validator.Validate(ctx, mk, now); err != nil {
			return domain.Settlement{}, fmt.Errorf("matcher: maker %d: %w", i, err)
		}
	}

	// Resolve the taker token's complement for synthetic matches. Tokens
	// without a registered pair can still match directly.
	var complement domain.PositionID
	havePair := false
	if pair, err := m.store.PairByToken(ctx, taker.TokenID); err == nil {
		complement, _ = pair.Complement(taker.TokenID)
		havePair = true
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Settlement{}, fmt.Errorf("matcher: pair lookup: %w", err)
	}

	// Fill accounting. An order's identity is its EIP-712 digest; cumulative
	// fills persist across calls so a partially-consumed salt cannot be
	// replayed beyond its quantity.
	fills := newFillTracker(m.store, m.validator)
	if err := fills.consume(ctx, taker, takerFill); err != nil {
		return domain.Settlement{}, fmt.Errorf("matcher: taker: %w", err)
	}

	var deltas []domain.BalanceDelta
	for i, mk := range makers {
		if err := fills.consume(ctx, mk, makerFills[i]); err != nil {
			return domain.Settlement{}, fmt.Errorf("matcher: maker %d: %w", i, err)
		}

		legDeltas, err := m.settleLeg(taker, mk, makerFills[i], complement, havePair)
		if err != nil {
			return domain.Settlement{}, fmt.Errorf("matcher: maker %d: %w", i, err)
		}
		deltas = append(deltas, legDeltas...)
	}

	settlement := domain.Settlement{
		ID:         uuid.New().String(),
		Kind:       domain.SettlementKindTrade,
		Deltas:     deltas,
		Watermarks: fills.watermarks(),
		Fills:      fills.updates(),
		CreatedAt:  now.UTC(),
	}
	if err := m.store.ApplySettlement(ctx, settlement); err != nil {
		return domain.Settlement{}, fmt.Errorf("matcher: apply settlement: %w", err)
	}

	m.logger.InfoContext(ctx, "trade settled",
		slog.String("settlement_id", settlement.ID),
		slog.String("taker", taker.Maker.Hex()),
		slog.Int("makers", len(makers)),
		slog.String("fill", takerFill.String()),
	)
	m.publish(ctx, domain.EventTradeSettled, map[string]any{
		"settlement_id": settlement.ID,
		"taker":         taker.Maker.Hex(),
		"token_id":      taker.TokenID.Hex(),
		"fill":          takerFill.String(),
		"makers":        len(makers),
	})
	return settlement, nil
}

// CancelOrders advances the maker's replay watermark for (token, side) to
// minSalt, invalidating every unfilled order signed with a lower salt. The
// update is monotonic and idempotent.
func (m *Matcher) CancelOrders(ctx context.Context, maker common.Address, token domain.PositionID, side domain.OrderSide, minSalt *big.Int, now time.Time) error {
	if minSalt == nil || minSalt.Sign() < 0 {
		return fmt.Errorf("matcher: cancel: salt must be non-negative: %w", domain.ErrInvalidFill)
	}

	s := domain.Settlement{
		ID:   uuid.New().String(),
		Kind: domain.SettlementKindCancel,
		Watermarks: []domain.WatermarkUpdate{{
			Key:     domain.WatermarkKey{Maker: maker, TokenID: token, Side: side},
			MinSalt: minSalt,
		}},
		CreatedAt: now.UTC(),
	}
	if err := m.store.ApplySettlement(ctx, s); err != nil {
		return fmt.Errorf("matcher: cancel: %w", err)
	}

	m.publish(ctx, domain.EventOrderCancelled, map[string]any{
		"maker":    maker.Hex(),
		"token_id": token.Hex(),
		"side":     string(side),
		"min_salt": minSalt.String(),
	})
	return nil
}

// settleLeg computes the balance deltas for one (taker-slice, maker-slice)
// pairing of quantity units, settled at the maker's limit price.
func (m *Matcher) settleLeg(taker, maker domain.Order, quantity *big.Int, complement domain.PositionID, havePair bool) ([]domain.BalanceDelta, error) {
	switch {
	case maker.TokenID == taker.TokenID && maker.Side == taker.Side.Opposite():
		return m.settleDirect(taker, maker, quantity)
	case havePair && maker.TokenID == complement && maker.Side == taker.Side:
		return m.settleSynthetic(taker, maker, quantity)
	default:
		return nil, domain.ErrInvalidMatch
	}
}

// settleDirect swaps collateral for position tokens between a buyer and a
// seller of the same token. The maker sets the price; the taker's limit
// must be at least as favorable.
func (m *Matcher) settleDirect(taker, maker domain.Order, quantity *big.Int) ([]domain.BalanceDelta, error) {
	buyer, seller := taker, maker
	if taker.Side == domain.OrderSideSell {
		buyer, seller = maker, taker
	}

	// buy limit must reach the sell limit.
	if buyer.Price.Cmp(seller.Price) < 0 {
		return nil, domain.ErrPriceNotCrossed
	}

	pay := collateralValue(quantity, maker.Price)
	return []domain.BalanceDelta{
		domain.Debit(buyer.Maker, m.collateral, pay),
		domain.Credit(seller.Maker, m.collateral, pay),
		domain.Debit(seller.Maker, seller.TokenID, quantity),
		domain.Credit(buyer.Maker, buyer.TokenID, quantity),
	}, nil
}

// settleSynthetic settles complementary-token orders on the same side. Two
// buys mint a full outcome set from jointly posted collateral; two sells
// merge a full set back into collateral. A full set of a binary condition
// is worth exactly one collateral unit, so the two limit prices must sum
// accordingly: at least one unit for buys (the legs fund the mint), at
// most one unit for sells (the merge covers both payouts). The maker leg
// is settled at its limit price, the taker leg at the complement.
func (m *Matcher) settleSynthetic(taker, maker domain.Order, quantity *big.Int) ([]domain.BalanceDelta, error) {
	priceSum := new(big.Int).Add(taker.Price, maker.Price)
	makerLeg := collateralValue(quantity, maker.Price)
	takerLeg := new(big.Int).Sub(quantity, makerLeg)

	if taker.Side == domain.OrderSideBuy {
		if priceSum.Cmp(priceScale) < 0 {
			return nil, domain.ErrPriceNotCrossed
		}
		// Mint: both legs pay collateral, each receives its token.
		return []domain.BalanceDelta{
			domain.Debit(taker.Maker, m.collateral, takerLeg),
			domain.Debit(maker.Maker, m.collateral, makerLeg),
			domain.Credit(taker.Maker, taker.TokenID, quantity),
			domain.Credit(maker.Maker, maker.TokenID, quantity),
		}, nil
	}

	if priceSum.Cmp(priceScale) > 0 {
		return nil, domain.ErrPriceNotCrossed
	}
	// Merge: both legs burn their token, the freed collateral is split.
	return []domain.BalanceDelta{
		domain.Debit(taker.Maker, taker.TokenID, quantity),
		domain.Debit(maker.Maker, maker.TokenID, quantity),
		domain.Credit(taker.Maker, m.collateral, takerLeg),
		domain.Credit(maker.Maker, m.collateral, makerLeg),
	}, nil
}

func (m *Matcher) publish(ctx context.Context, eventType string, data map[string]any) {
	if m.bus == nil {
		return
	}
	payload, _ := json.Marshal(domain.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err := m.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
		m.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// collateralValue returns floor(quantity * price / PriceScale).
func collateralValue(quantity, price *big.Int) *big.Int {
	v := new(big.Int).Mul(quantity, price)
	return v.Quo(v, priceScale)
}
