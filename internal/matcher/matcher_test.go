package matcher

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	settlecrypto "github.com/alanyoungcy/settlecore/internal/crypto"
	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
	"github.com/alanyoungcy/settlecore/internal/validator"
)

const chainID = int64(31337)

var (
	matcherAddr    = common.HexToAddress("0x9CB495Ac087AA98D80a54C95121be52773704859")
	collateralAddr = common.HexToAddress("0xaDD98F6E5a11a337870350dDb72edADFB1DFc3cc")
	conditionID    = common.BytesToHash([]byte("rain-condition"))
	yesToken       = common.BytesToHash([]byte("yes-token"))
	noToken        = common.BytesToHash([]byte("no-token"))
	now            = time.Unix(1_700_000_000, 0)
)

type trader struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newTrader(t *testing.T) trader {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return trader{key: key, addr: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

func (tr trader) order(t *testing.T, token domain.PositionID, quantity, price, salt int64, side domain.OrderSide) domain.Order {
	t.Helper()
	o := domain.Order{
		Maker:    tr.addr,
		TokenID:  token,
		Quantity: big.NewInt(quantity),
		Price:    big.NewInt(price),
		Side:     side,
		Deadline: big.NewInt(now.Unix() + 3600),
		Salt:     big.NewInt(salt),
	}
	sig, err := settlecrypto.SignOrder(o, chainID, matcherAddr, tr.key)
	require.NoError(t, err)
	o.Signature = sig
	return o
}

func newMatcher(t *testing.T) (*Matcher, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.PutPair(context.Background(), domain.PositionPair{
		ConditionID: conditionID,
		Yes:         yesToken,
		No:          noToken,
	}))
	v := validator.New(store, chainID, matcherAddr)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, v, collateralAddr, nil, logger), store
}

func fund(t *testing.T, store *memory.Store, account common.Address, asset domain.AssetID, amount int64) {
	t.Helper()
	require.NoError(t, store.ApplySettlement(context.Background(), domain.Settlement{
		ID:        "fund-" + account.Hex() + asset.Hex(),
		Kind:      domain.SettlementKindCredit,
		Deltas:    []domain.BalanceDelta{domain.Credit(account, asset, big.NewInt(amount))},
		CreatedAt: now,
	}))
}

func balance(t *testing.T, store *memory.Store, account common.Address, asset domain.AssetID) int64 {
	t.Helper()
	b, err := store.Balance(context.Background(), account, asset)
	require.NoError(t, err)
	return b.Int64()
}

func TestSyntheticMint(t *testing.T) {
	// A taker buying 1,000,000 yes at 200,000 crosses two makers each buying
	// 500,000 no at 800,000. The mint is funded jointly: the taker posts
	// 200,000 collateral, each maker 400,000, and 1,000,000 full sets come
	// into existence.
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	taker := newTrader(t)
	maker1 := newTrader(t)
	maker2 := newTrader(t)
	fund(t, store, taker.addr, collateral, 200_000)
	fund(t, store, maker1.addr, collateral, 400_000)
	fund(t, store, maker2.addr, collateral, 400_000)

	takerOrder := taker.order(t, yesToken, 1_000_000, 200_000, 0, domain.OrderSideBuy)
	makerOrders := []domain.Order{
		maker1.order(t, noToken, 500_000, 800_000, 0, domain.OrderSideBuy),
		maker2.order(t, noToken, 500_000, 800_000, 0, domain.OrderSideBuy),
	}

	s, err := m.MatchOrders(ctx, takerOrder, makerOrders,
		big.NewInt(1_000_000), []*big.Int{big.NewInt(500_000), big.NewInt(500_000)}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementKindTrade, s.Kind)
	assert.Len(t, s.Deltas, 8)

	assert.EqualValues(t, 0, balance(t, store, taker.addr, collateral))
	assert.EqualValues(t, 1_000_000, balance(t, store, taker.addr, yesToken))
	assert.EqualValues(t, 0, balance(t, store, maker1.addr, collateral))
	assert.EqualValues(t, 500_000, balance(t, store, maker1.addr, noToken))
	assert.EqualValues(t, 500_000, balance(t, store, maker2.addr, noToken))

	// All three orders filled completely, so every watermark advanced.
	require.Len(t, s.Watermarks, 3)
	wm, err := store.Watermark(ctx, domain.WatermarkKey{Maker: taker.addr, TokenID: yesToken, Side: domain.OrderSideBuy})
	require.NoError(t, err)
	assert.EqualValues(t, 1, wm.Int64())
}

func TestSyntheticMerge(t *testing.T) {
	// Two sells of complementary tokens burn full sets back into collateral.
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	taker := newTrader(t)
	maker := newTrader(t)
	fund(t, store, taker.addr, yesToken, 600_000)
	fund(t, store, maker.addr, noToken, 600_000)

	takerOrder := taker.order(t, yesToken, 600_000, 250_000, 0, domain.OrderSideSell)
	makerOrder := maker.order(t, noToken, 600_000, 700_000, 0, domain.OrderSideSell)

	_, err := m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(600_000), []*big.Int{big.NewInt(600_000)}, now)
	require.NoError(t, err)

	// Maker is paid at its limit, the taker takes the remainder.
	assert.EqualValues(t, 420_000, balance(t, store, maker.addr, collateral))
	assert.EqualValues(t, 180_000, balance(t, store, taker.addr, collateral))
	assert.EqualValues(t, 0, balance(t, store, taker.addr, yesToken))
	assert.EqualValues(t, 0, balance(t, store, maker.addr, noToken))
}

func TestDirectMatch(t *testing.T) {
	// Buyer and seller of the same token settle at the maker's price even
	// when the taker's limit is more generous.
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	buyer := newTrader(t)
	seller := newTrader(t)
	fund(t, store, buyer.addr, collateral, 500_000)
	fund(t, store, seller.addr, yesToken, 1_000_000)

	takerOrder := buyer.order(t, yesToken, 1_000_000, 500_000, 0, domain.OrderSideBuy)
	makerOrder := seller.order(t, yesToken, 1_000_000, 400_000, 0, domain.OrderSideSell)

	_, err := m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(1_000_000), []*big.Int{big.NewInt(1_000_000)}, now)
	require.NoError(t, err)

	assert.EqualValues(t, 100_000, balance(t, store, buyer.addr, collateral))
	assert.EqualValues(t, 1_000_000, balance(t, store, buyer.addr, yesToken))
	assert.EqualValues(t, 400_000, balance(t, store, seller.addr, collateral))
	assert.EqualValues(t, 0, balance(t, store, seller.addr, yesToken))
}

func TestPriceNotCrossed(t *testing.T) {
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	a := newTrader(t)
	b := newTrader(t)
	fund(t, store, a.addr, collateral, 1_000_000)
	fund(t, store, b.addr, collateral, 1_000_000)
	fund(t, store, b.addr, yesToken, 1_000_000)

	// Direct: buy limit below the sell limit.
	_, err := m.MatchOrders(ctx,
		a.order(t, yesToken, 100_000, 300_000, 0, domain.OrderSideBuy),
		[]domain.Order{b.order(t, yesToken, 100_000, 400_000, 0, domain.OrderSideSell)},
		big.NewInt(100_000), []*big.Int{big.NewInt(100_000)}, now)
	assert.ErrorIs(t, err, domain.ErrPriceNotCrossed)

	// Synthetic mint: limits sum below one collateral unit.
	_, err = m.MatchOrders(ctx,
		a.order(t, yesToken, 100_000, 300_000, 1, domain.OrderSideBuy),
		[]domain.Order{b.order(t, noToken, 100_000, 600_000, 0, domain.OrderSideBuy)},
		big.NewInt(100_000), []*big.Int{big.NewInt(100_000)}, now)
	assert.ErrorIs(t, err, domain.ErrPriceNotCrossed)
}

func TestInvalidPairing(t *testing.T) {
	// Same token, same side is never a match.
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	a := newTrader(t)
	b := newTrader(t)
	fund(t, store, a.addr, collateral, 1_000_000)
	fund(t, store, b.addr, collateral, 1_000_000)

	_, err := m.MatchOrders(ctx,
		a.order(t, yesToken, 100_000, 500_000, 0, domain.OrderSideBuy),
		[]domain.Order{b.order(t, yesToken, 100_000, 500_000, 0, domain.OrderSideBuy)},
		big.NewInt(100_000), []*big.Int{big.NewInt(100_000)}, now)
	assert.ErrorIs(t, err, domain.ErrInvalidMatch)
}

func TestFillBookkeeping(t *testing.T) {
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	buyer := newTrader(t)
	seller := newTrader(t)
	fund(t, store, buyer.addr, collateral, 1_000_000)
	fund(t, store, seller.addr, yesToken, 2_000_000)

	takerOrder := buyer.order(t, yesToken, 1_000_000, 500_000, 0, domain.OrderSideBuy)
	makerOrder := seller.order(t, yesToken, 2_000_000, 400_000, 0, domain.OrderSideSell)

	// Fill sum mismatch is rejected up front.
	_, err := m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(1_000_000), []*big.Int{big.NewInt(600_000)}, now)
	assert.ErrorIs(t, err, domain.ErrInvalidFill)

	// Partial fill of both orders.
	_, err = m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(600_000), []*big.Int{big.NewInt(600_000)}, now)
	require.NoError(t, err)

	// Neither order is exhausted, so no watermark moved.
	wm, err := store.Watermark(ctx, domain.WatermarkKey{Maker: buyer.addr, TokenID: yesToken, Side: domain.OrderSideBuy})
	require.NoError(t, err)
	assert.EqualValues(t, 0, wm.Int64())

	// Overfilling the remainder fails; filling exactly the remainder works.
	_, err = m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(500_000), []*big.Int{big.NewInt(500_000)}, now)
	assert.ErrorIs(t, err, domain.ErrInvalidFill)

	_, err = m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(400_000), []*big.Int{big.NewInt(400_000)}, now)
	require.NoError(t, err)

	// The taker order is now exhausted and its salt burned.
	_, err = m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(1), []*big.Int{big.NewInt(1)}, now)
	assert.ErrorIs(t, err, domain.ErrStale)
}

func TestInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	buyer := newTrader(t)
	seller := newTrader(t)
	// Buyer can only cover half the trade.
	fund(t, store, buyer.addr, collateral, 200_000)
	fund(t, store, seller.addr, yesToken, 1_000_000)

	takerOrder := buyer.order(t, yesToken, 1_000_000, 400_000, 0, domain.OrderSideBuy)
	makerOrder := seller.order(t, yesToken, 1_000_000, 400_000, 0, domain.OrderSideSell)

	_, err := m.MatchOrders(ctx, takerOrder, []domain.Order{makerOrder},
		big.NewInt(1_000_000), []*big.Int{big.NewInt(1_000_000)}, now)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Nothing moved: balances, fills, and watermarks are all unchanged.
	assert.EqualValues(t, 200_000, balance(t, store, buyer.addr, collateral))
	assert.EqualValues(t, 1_000_000, balance(t, store, seller.addr, yesToken))
	v := validator.New(store, chainID, matcherAddr)
	filled, err := store.Filled(ctx, v.Digest(takerOrder))
	require.NoError(t, err)
	assert.EqualValues(t, 0, filled.Int64())
}

func TestCancelOrders(t *testing.T) {
	ctx := context.Background()
	m, store := newMatcher(t)
	collateral := domain.CollateralAsset(collateralAddr)

	buyer := newTrader(t)
	seller := newTrader(t)
	fund(t, store, buyer.addr, collateral, 1_000_000)
	fund(t, store, seller.addr, yesToken, 1_000_000)

	o := buyer.order(t, yesToken, 100_000, 500_000, 5, domain.OrderSideBuy)
	require.NoError(t, m.CancelOrders(ctx, buyer.addr, yesToken, domain.OrderSideBuy, big.NewInt(6), now))

	_, err := m.MatchOrders(ctx, o,
		[]domain.Order{seller.order(t, yesToken, 100_000, 500_000, 0, domain.OrderSideSell)},
		big.NewInt(100_000), []*big.Int{big.NewInt(100_000)}, now)
	assert.ErrorIs(t, err, domain.ErrStale)

	// A fresh salt at the new watermark still trades.
	o2 := buyer.order(t, yesToken, 100_000, 500_000, 6, domain.OrderSideBuy)
	_, err = m.MatchOrders(ctx, o2,
		[]domain.Order{seller.order(t, yesToken, 100_000, 500_000, 0, domain.OrderSideSell)},
		big.NewInt(100_000), []*big.Int{big.NewInt(100_000)}, now)
	require.NoError(t, err)

	// Cancel below the current watermark is a no-op, not an error.
	require.NoError(t, m.CancelOrders(ctx, buyer.addr, yesToken, domain.OrderSideBuy, big.NewInt(2), now))
	wm, err := store.Watermark(ctx, domain.WatermarkKey{Maker: buyer.addr, TokenID: yesToken, Side: domain.OrderSideBuy})
	require.NoError(t, err)
	assert.EqualValues(t, 7, wm.Int64())
}
