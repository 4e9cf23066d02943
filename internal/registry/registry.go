// Package registry manages the lifecycle of conditions: preparation by the
// administrator, yes/no position pair registration, and payout reporting by
// the oracle. Role checks are plain identity comparisons against recorded
// addresses; how those identities were authenticated is the caller's concern.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/ctf"
	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Registry validates and records condition state transitions.
type Registry struct {
	store      domain.ConditionStore
	admin      common.Address
	collateral common.Address
	bus        domain.SignalBus // optional
	logger     *slog.Logger
}

// New creates a Registry. bus may be nil when no event publishing is wanted.
func New(store domain.ConditionStore, admin, collateral common.Address, bus domain.SignalBus, logger *slog.Logger) *Registry {
	return &Registry{
		store:      store,
		admin:      admin,
		collateral: collateral,
		bus:        bus,
		logger:     logger.With(slog.String("component", "registry")),
	}
}

// PrepareCondition creates a condition for (oracle, questionID, slotCount).
// Restricted to the administrator. The derived condition identifier is
// returned; preparing the same tuple twice fails with ErrAlreadyPrepared.
func (r *Registry) PrepareCondition(ctx context.Context, caller, oracle common.Address, questionID common.Hash, slotCount int) (domain.Condition, error) {
	if caller != r.admin {
		return domain.Condition{}, fmt.Errorf("registry: prepare condition: %w", domain.ErrUnauthorized)
	}
	if slotCount < 2 || slotCount > 64 {
		return domain.Condition{}, fmt.Errorf("registry: slot count %d out of range [2,64]", slotCount)
	}

	cond := domain.Condition{
		ID:           ctf.ConditionID(oracle, questionID, slotCount),
		Oracle:       oracle,
		QuestionID:   questionID,
		OutcomeSlots: slotCount,
		PreparedAt:   time.Now().UTC(),
	}
	if err := r.store.PutCondition(ctx, cond); err != nil {
		return domain.Condition{}, fmt.Errorf("registry: prepare condition: %w", err)
	}

	r.logger.InfoContext(ctx, "condition prepared",
		slog.String("condition_id", cond.ID.Hex()),
		slog.String("oracle", oracle.Hex()),
		slog.Int("slots", slotCount),
	)
	r.publish(ctx, domain.EventConditionPrepared, map[string]any{
		"condition_id": cond.ID.Hex(),
		"question_id":  questionID.Hex(),
		"oracle":       oracle.Hex(),
		"slots":        slotCount,
	})
	return cond, nil
}

// DeriveBinaryPair computes the yes/no position identifiers of a binary
// condition under the root collection and the configured collateral asset.
func (r *Registry) DeriveBinaryPair(conditionID domain.ConditionID) (yes, no domain.PositionID) {
	yes = ctf.PositionID(r.collateral, ctf.CollectionID(domain.RootCollection, conditionID, ctf.IndexSetYes))
	no = ctf.PositionID(r.collateral, ctf.CollectionID(domain.RootCollection, conditionID, ctf.IndexSetNo))
	return yes, no
}

// RegisterPositionPair records the complementary yes/no positions for a
// prepared condition so the matcher can resolve synthetic matches.
// Restricted to the administrator.
func (r *Registry) RegisterPositionPair(ctx context.Context, caller common.Address, yes, no domain.PositionID, conditionID domain.ConditionID) error {
	if caller != r.admin {
		return fmt.Errorf("registry: register pair: %w", domain.ErrUnauthorized)
	}

	if _, err := r.store.GetCondition(ctx, conditionID); err != nil {
		return fmt.Errorf("registry: register pair: %w", err)
	}

	pair := domain.PositionPair{ConditionID: conditionID, Yes: yes, No: no}
	if err := r.store.PutPair(ctx, pair); err != nil {
		return fmt.Errorf("registry: register pair: %w", err)
	}

	r.logger.InfoContext(ctx, "position pair registered",
		slog.String("condition_id", conditionID.Hex()),
		slog.String("yes", yes.Hex()),
		slog.String("no", no.Hex()),
	)
	r.publish(ctx, domain.EventPairRegistered, map[string]any{
		"condition_id": conditionID.Hex(),
		"yes":          yes.Hex(),
		"no":           no.Hex(),
	})
	return nil
}

// ReportPayouts records the oracle's payout vector for the condition tied
// to questionID. The vector length must equal the slot count, entries are
// non-negative, and at least one entry must be positive; the payout
// fraction for slot i is payouts[i] / sum(payouts). A condition resolves
// exactly once.
func (r *Registry) ReportPayouts(ctx context.Context, caller common.Address, questionID common.Hash, payouts []uint64) (domain.Condition, error) {
	cond, err := r.store.GetConditionByQuestion(ctx, questionID)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("registry: report payouts: %w", err)
	}
	if caller != cond.Oracle {
		return domain.Condition{}, fmt.Errorf("registry: report payouts: %w", domain.ErrNotOracle)
	}

	if len(payouts) != cond.OutcomeSlots {
		return domain.Condition{}, fmt.Errorf("registry: payout vector length %d != %d slots: %w",
			len(payouts), cond.OutcomeSlots, domain.ErrInvalidVector)
	}
	var sum uint64
	for _, p := range payouts {
		if p > math.MaxUint64-sum {
			return domain.Condition{}, fmt.Errorf("registry: payout vector sum overflows: %w", domain.ErrInvalidVector)
		}
		sum += p
	}
	if sum == 0 {
		return domain.Condition{}, fmt.Errorf("registry: all-zero payout vector: %w", domain.ErrInvalidVector)
	}

	if err := r.store.SetPayouts(ctx, cond.ID, payouts, time.Now().UTC()); err != nil {
		return domain.Condition{}, fmt.Errorf("registry: report payouts: %w", err)
	}

	cond, err = r.store.GetCondition(ctx, cond.ID)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("registry: reload condition: %w", err)
	}

	r.logger.InfoContext(ctx, "condition resolved",
		slog.String("condition_id", cond.ID.Hex()),
		slog.Any("payouts", payouts),
	)
	r.publish(ctx, domain.EventConditionResolved, map[string]any{
		"condition_id": cond.ID.Hex(),
		"question_id":  questionID.Hex(),
		"payouts":      payouts,
	})
	return cond, nil
}

// publish emits an event on the conditions channel; bus failures are logged
// and never fail the registry operation itself.
func (r *Registry) publish(ctx context.Context, eventType string, data map[string]any) {
	if r.bus == nil {
		return
	}
	payload, _ := json.Marshal(domain.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err := r.bus.Publish(ctx, domain.ChannelConditions, payload); err != nil {
		r.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}
