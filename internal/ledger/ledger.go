// Package ledger exposes the balance mutation primitives of the settlement
// core. The ledger exclusively owns balance state: every other component
// mutates balances through it (or through settlements it validates), never
// directly.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Ledger wraps a StateStore with validated credit/debit/transfer
// primitives. All amounts are non-negative uint256 values.
type Ledger struct {
	store  domain.StateStore
	logger *slog.Logger
}

// New creates a Ledger over the given store.
func New(store domain.StateStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Balance returns the current balance for (account, asset).
func (l *Ledger) Balance(ctx context.Context, account common.Address, asset domain.AssetID) (*big.Int, error) {
	return l.store.Balance(ctx, account, asset)
}

// Credit adds amount to (account, asset). Fails with ErrOverflow when the
// balance would exceed 2^256-1.
func (l *Ledger) Credit(ctx context.Context, account common.Address, asset domain.AssetID, amount *big.Int) (domain.Settlement, error) {
	if err := checkAmount(amount); err != nil {
		return domain.Settlement{}, err
	}
	return l.apply(ctx, domain.SettlementKindCredit, domain.Credit(account, asset, amount))
}

// Debit removes amount from (account, asset). Fails with
// ErrInsufficientBalance when amount exceeds the current balance.
func (l *Ledger) Debit(ctx context.Context, account common.Address, asset domain.AssetID, amount *big.Int) (domain.Settlement, error) {
	if err := checkAmount(amount); err != nil {
		return domain.Settlement{}, err
	}
	return l.apply(ctx, domain.SettlementKindDebit, domain.Debit(account, asset, amount))
}

// Transfer moves amount from one account to another as a single atomic
// step; no partial transfer is ever visible.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, asset domain.AssetID, amount *big.Int) (domain.Settlement, error) {
	if err := checkAmount(amount); err != nil {
		return domain.Settlement{}, err
	}
	return l.apply(ctx, domain.SettlementKindTransfer,
		domain.Debit(from, asset, amount),
		domain.Credit(to, asset, amount),
	)
}

func (l *Ledger) apply(ctx context.Context, kind domain.SettlementKind, deltas ...domain.BalanceDelta) (domain.Settlement, error) {
	s := domain.Settlement{
		ID:        uuid.New().String(),
		Kind:      kind,
		Deltas:    deltas,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.ApplySettlement(ctx, s); err != nil {
		return domain.Settlement{}, fmt.Errorf("ledger: apply: %w", err)
	}
	return s, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("ledger: amount must be non-negative, got %v", amount)
	}
	if amount.Cmp(domain.MaxUint256) > 0 {
		return fmt.Errorf("ledger: %w", domain.ErrOverflow)
	}
	return nil
}
