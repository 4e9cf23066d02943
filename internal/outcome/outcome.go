// Package outcome implements the position lifecycle against collateral:
// splitting collateral into a full set of outcome tokens, merging a full
// set back, and redeeming resolved positions at their reported payout.
package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/settlecore/internal/ctf"
	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Engine executes split, merge, and redeem settlements atomically through
// the state store.
type Engine struct {
	store      domain.StateStore
	collateral common.Address
	asset      domain.AssetID
	bus        domain.SignalBus // optional
	logger     *slog.Logger
}

// New creates an Engine bound to the given collateral token.
func New(store domain.StateStore, collateral common.Address, bus domain.SignalBus, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		collateral: collateral,
		asset:      domain.CollateralAsset(collateral),
		bus:        bus,
		logger:     logger.With(slog.String("component", "outcome")),
	}
}

// BinaryPartition is the canonical yes/no partition of a binary condition.
var BinaryPartition = []uint64{ctf.IndexSetYes, ctf.IndexSetNo}

// Split burns amount collateral from account and mints amount units of each
// partition position. The partition must cover the condition's full index
// set with disjoint, non-empty index sets.
func (e *Engine) Split(ctx context.Context, account common.Address, conditionID domain.ConditionID, partition []uint64, amount *big.Int) (domain.Settlement, error) {
	cond, positions, err := e.resolvePositions(ctx, conditionID, partition)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: split: %w", err)
	}
	if err := checkAmount(amount); err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: split: %w", err)
	}

	deltas := make([]domain.BalanceDelta, 0, len(positions)+1)
	deltas = append(deltas, domain.Debit(account, e.asset, amount))
	for _, pos := range positions {
		deltas = append(deltas, domain.Credit(account, pos, amount))
	}

	s, err := e.apply(ctx, domain.SettlementKindSplit, deltas)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: split: %w", err)
	}

	e.logger.InfoContext(ctx, "position split",
		slog.String("account", account.Hex()),
		slog.String("condition_id", cond.ID.Hex()),
		slog.String("amount", amount.String()),
	)
	e.publish(ctx, domain.EventPositionSplit, account, cond.ID, amount)
	return s, nil
}

// Merge burns amount units of each partition position from account and
// mints amount collateral back. The exact inverse of Split.
func (e *Engine) Merge(ctx context.Context, account common.Address, conditionID domain.ConditionID, partition []uint64, amount *big.Int) (domain.Settlement, error) {
	cond, positions, err := e.resolvePositions(ctx, conditionID, partition)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: merge: %w", err)
	}
	if err := checkAmount(amount); err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: merge: %w", err)
	}

	deltas := make([]domain.BalanceDelta, 0, len(positions)+1)
	for _, pos := range positions {
		deltas = append(deltas, domain.Debit(account, pos, amount))
	}
	deltas = append(deltas, domain.Credit(account, e.asset, amount))

	s, err := e.apply(ctx, domain.SettlementKindMerge, deltas)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: merge: %w", err)
	}

	e.logger.InfoContext(ctx, "positions merged",
		slog.String("account", account.Hex()),
		slog.String("condition_id", cond.ID.Hex()),
		slog.String("amount", amount.String()),
	)
	e.publish(ctx, domain.EventPositionMerged, account, cond.ID, amount)
	return s, nil
}

// Redeem converts the account's entire balance of each listed index set's
// position into collateral at the reported payout fraction, rounded down.
// The condition must be resolved. Positions with a zero balance are
// skipped, which makes redeeming twice harmless.
func (e *Engine) Redeem(ctx context.Context, account common.Address, conditionID domain.ConditionID, indexSets []uint64) (domain.Settlement, error) {
	cond, err := e.store.GetCondition(ctx, conditionID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: redeem: %w", err)
	}
	if !cond.Resolved() {
		return domain.Settlement{}, fmt.Errorf("outcome: redeem: %w", domain.ErrNotResolved)
	}

	den := cond.PayoutDenominator()
	full := ctf.FullIndexSet(cond.OutcomeSlots)

	var deltas []domain.BalanceDelta
	total := new(big.Int)
	for _, set := range indexSets {
		if set == 0 || set > full {
			return domain.Settlement{}, fmt.Errorf("outcome: redeem: index set %d out of range: %w", set, domain.ErrInvalidPartition)
		}

		pos := e.positionFor(conditionID, set)
		held, err := e.store.Balance(ctx, account, pos)
		if err != nil {
			return domain.Settlement{}, fmt.Errorf("outcome: redeem: %w", err)
		}
		if held.Sign() == 0 {
			continue
		}

		num := new(big.Int)
		for i := 0; i < cond.OutcomeSlots; i++ {
			if set&(uint64(1)<<uint(i)) != 0 {
				num.Add(num, new(big.Int).SetUint64(cond.Payouts[i]))
			}
		}

		payout := new(big.Int).Mul(held, num)
		payout.Quo(payout, den)

		deltas = append(deltas, domain.Debit(account, pos, held))
		if payout.Sign() > 0 {
			deltas = append(deltas, domain.Credit(account, e.asset, payout))
		}
		total.Add(total, payout)
	}

	if len(deltas) == 0 {
		// Nothing held; a valid no-op.
		return domain.Settlement{}, nil
	}

	s, err := e.apply(ctx, domain.SettlementKindRedeem, deltas)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("outcome: redeem: %w", err)
	}

	e.logger.InfoContext(ctx, "positions redeemed",
		slog.String("account", account.Hex()),
		slog.String("condition_id", conditionID.Hex()),
		slog.String("payout", total.String()),
	)
	e.publish(ctx, domain.EventPositionRedeemed, account, conditionID, total)
	return s, nil
}

// resolvePositions validates the partition against the condition and
// derives the position identifier of every index set.
func (e *Engine) resolvePositions(ctx context.Context, conditionID domain.ConditionID, partition []uint64) (domain.Condition, []domain.PositionID, error) {
	cond, err := e.store.GetCondition(ctx, conditionID)
	if err != nil {
		return domain.Condition{}, nil, err
	}
	if !ctf.ValidPartition(partition, cond.OutcomeSlots) {
		return domain.Condition{}, nil, fmt.Errorf("partition %v over %d slots: %w", partition, cond.OutcomeSlots, domain.ErrInvalidPartition)
	}

	positions := make([]domain.PositionID, len(partition))
	for i, set := range partition {
		positions[i] = e.positionFor(conditionID, set)
	}
	return cond, positions, nil
}

func (e *Engine) positionFor(conditionID domain.ConditionID, indexSet uint64) domain.PositionID {
	return ctf.PositionID(e.collateral, ctf.CollectionID(domain.RootCollection, conditionID, indexSet))
}

func (e *Engine) apply(ctx context.Context, kind domain.SettlementKind, deltas []domain.BalanceDelta) (domain.Settlement, error) {
	s := domain.Settlement{
		ID:        uuid.New().String(),
		Kind:      kind,
		Deltas:    deltas,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.ApplySettlement(ctx, s); err != nil {
		return domain.Settlement{}, err
	}
	return s, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if amount.Cmp(domain.MaxUint256) > 0 {
		return domain.ErrOverflow
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, eventType string, account common.Address, conditionID domain.ConditionID, amount *big.Int) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(domain.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"account":      account.Hex(),
			"condition_id": conditionID.Hex(),
			"amount":       amount.String(),
		},
	})
	if err := e.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}
