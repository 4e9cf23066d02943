package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

var (
	acctA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	acctB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	asset = common.BytesToHash([]byte("collateral"))
)

func settle(deltas ...domain.BalanceDelta) domain.Settlement {
	return domain.Settlement{
		ID:        "test",
		Kind:      domain.SettlementKindCredit,
		Deltas:    deltas,
		CreatedAt: time.Now(),
	}
}

func TestApplySettlementAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ApplySettlement(ctx, settle(
		domain.Credit(acctA, asset, big.NewInt(100)),
	)))

	// One good leg, one overdraft: nothing may land.
	err := s.ApplySettlement(ctx, settle(
		domain.Credit(acctB, asset, big.NewInt(50)),
		domain.Debit(acctA, asset, big.NewInt(200)),
	))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	a, err := s.Balance(ctx, acctA, asset)
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.Int64())

	b, err := s.Balance(ctx, acctB, asset)
	require.NoError(t, err)
	assert.Zero(t, b.Int64())
}

func TestApplySettlementSequentialDeltasSameKey(t *testing.T) {
	ctx := context.Background()
	s := New()

	// Credit then debit of the same key inside one settlement must net out.
	require.NoError(t, s.ApplySettlement(ctx, settle(
		domain.Credit(acctA, asset, big.NewInt(70)),
		domain.Debit(acctA, asset, big.NewInt(30)),
	)))

	a, err := s.Balance(ctx, acctA, asset)
	require.NoError(t, err)
	assert.Equal(t, int64(40), a.Int64())
}

func TestApplySettlementOverflow(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ApplySettlement(ctx, settle(
		domain.Credit(acctA, asset, domain.MaxUint256),
	)))

	err := s.ApplySettlement(ctx, settle(
		domain.Credit(acctA, asset, big.NewInt(1)),
	))
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestWatermarkMonotonic(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := domain.WatermarkKey{Maker: acctA, TokenID: asset, Side: domain.OrderSideBuy}

	require.NoError(t, s.ApplySettlement(ctx, domain.Settlement{
		ID:         "w1",
		Kind:       domain.SettlementKindCancel,
		Watermarks: []domain.WatermarkUpdate{{Key: key, MinSalt: big.NewInt(5)}},
		CreatedAt:  time.Now(),
	}))
	// A lower update must not rewind.
	require.NoError(t, s.ApplySettlement(ctx, domain.Settlement{
		ID:         "w2",
		Kind:       domain.SettlementKindCancel,
		Watermarks: []domain.WatermarkUpdate{{Key: key, MinSalt: big.NewInt(3)}},
		CreatedAt:  time.Now(),
	}))

	w, err := s.Watermark(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), w.Int64())
}

func TestConditionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	cond := domain.Condition{
		ID:           common.BytesToHash([]byte("cond")),
		Oracle:       acctA,
		QuestionID:   common.BytesToHash([]byte("q")),
		OutcomeSlots: 2,
		PreparedAt:   time.Now(),
	}
	require.NoError(t, s.PutCondition(ctx, cond))
	assert.ErrorIs(t, s.PutCondition(ctx, cond), domain.ErrAlreadyPrepared)

	got, err := s.GetConditionByQuestion(ctx, cond.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, cond.ID, got.ID)

	require.NoError(t, s.SetPayouts(ctx, cond.ID, []uint64{1, 0}, time.Now()))
	assert.ErrorIs(t, s.SetPayouts(ctx, cond.ID, []uint64{0, 1}, time.Now()), domain.ErrAlreadyResolved)

	got, err = s.GetCondition(ctx, cond.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, got.Payouts)
	assert.Equal(t, int64(1), got.PayoutDenominator().Int64())

	_, err = s.GetCondition(ctx, common.BytesToHash([]byte("missing")))
	assert.ErrorIs(t, err, domain.ErrUnknownCondition)
}

func TestPairRegistration(t *testing.T) {
	ctx := context.Background()
	s := New()

	pair := domain.PositionPair{
		ConditionID: common.BytesToHash([]byte("cond")),
		Yes:         common.BytesToHash([]byte("yes")),
		No:          common.BytesToHash([]byte("no")),
	}
	require.NoError(t, s.PutPair(ctx, pair))
	assert.ErrorIs(t, s.PutPair(ctx, pair), domain.ErrAlreadyRegistered)

	got, err := s.PairByToken(ctx, pair.No)
	require.NoError(t, err)
	comp, ok := got.Complement(pair.No)
	require.True(t, ok)
	assert.Equal(t, pair.Yes, comp)

	_, err = s.PairByToken(ctx, common.BytesToHash([]byte("other")))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
