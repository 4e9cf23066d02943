package ledger

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	usdc  = domain.CollateralAsset(common.HexToAddress("0xaDD98F6E5a11a337870350dDb72eDaDFB1DFc3cc"))
)

func newLedger() *Ledger {
	return New(memory.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreditDebit(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	s, err := l.Credit(ctx, alice, usdc, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementKindCredit, s.Kind)

	_, err = l.Debit(ctx, alice, usdc, big.NewInt(400))
	require.NoError(t, err)

	bal, err := l.Balance(ctx, alice, usdc)
	require.NoError(t, err)
	assert.Equal(t, int64(600), bal.Int64())
}

func TestDebitInsufficient(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	_, err := l.Credit(ctx, alice, usdc, big.NewInt(100))
	require.NoError(t, err)

	_, err = l.Debit(ctx, alice, usdc, big.NewInt(101))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	bal, err := l.Balance(ctx, alice, usdc)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Int64())
}

func TestTransferAtomic(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	_, err := l.Credit(ctx, alice, usdc, big.NewInt(100))
	require.NoError(t, err)

	_, err = l.Transfer(ctx, alice, bob, usdc, big.NewInt(60))
	require.NoError(t, err)

	a, _ := l.Balance(ctx, alice, usdc)
	b, _ := l.Balance(ctx, bob, usdc)
	assert.Equal(t, int64(40), a.Int64())
	assert.Equal(t, int64(60), b.Int64())

	// Overdraft: neither side moves.
	_, err = l.Transfer(ctx, alice, bob, usdc, big.NewInt(41))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	a, _ = l.Balance(ctx, alice, usdc)
	b, _ = l.Balance(ctx, bob, usdc)
	assert.Equal(t, int64(40), a.Int64())
	assert.Equal(t, int64(60), b.Int64())
}

func TestCreditOverflow(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	_, err := l.Credit(ctx, alice, usdc, domain.MaxUint256)
	require.NoError(t, err)

	_, err = l.Credit(ctx, alice, usdc, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestNegativeAmountRejected(t *testing.T) {
	ctx := context.Background()
	l := newLedger()

	_, err := l.Credit(ctx, alice, usdc, big.NewInt(-1))
	assert.Error(t, err)

	_, err = l.Debit(ctx, alice, usdc, big.NewInt(-1))
	assert.Error(t, err)
}
