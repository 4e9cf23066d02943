// Package domain defines the core types, store interfaces, and error
// taxonomy shared by every component of the settlement core.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceScale is the fixed-point denominator for limit prices: a price of
// 1_000_000 means one full collateral unit per position token. A complete
// outcome set of a binary condition is worth exactly PriceScale.
const PriceScale = 1_000_000

// ID aliases. Conditions, collections, positions, and ledger assets are all
// 32-byte deterministic hashes so independent parties can agree on them
// without a shared registry.
type (
	ConditionID  = common.Hash
	CollectionID = common.Hash
	PositionID   = common.Hash
	AssetID      = common.Hash
)

// RootCollection is the all-zero collection identifier representing raw,
// unpartitioned collateral.
var RootCollection = CollectionID{}

// CollateralAsset maps the collateral token address into the ledger's
// 32-byte asset key space (left-padded, like an abi-encoded address).
func CollateralAsset(token common.Address) AssetID {
	return common.BytesToHash(token.Bytes())
}

// OrderSide indicates whether an order buys or sells position tokens
// against collateral.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// IsBuy reports whether the side is a buy. Used when encoding the EIP-712
// `bool buy` field.
func (s OrderSide) IsBuy() bool { return s == OrderSideBuy }

// Order is a signed intent to trade a quantity of a position token at a
// limit price. Orders are immutable once signed; the seven payload fields
// below (everything except Signature) are exactly what the EIP-712 digest
// covers.
type Order struct {
	Maker     common.Address
	TokenID   PositionID
	Quantity  *big.Int // position token units
	Price     *big.Int // collateral units per PriceScale position units
	Side      OrderSide
	Deadline  *big.Int // unix seconds; orders with Deadline < now are expired
	Salt      *big.Int // monotonic replay nonce, valid while >= watermark
	Signature []byte   // 65-byte secp256k1 signature (r || s || v)
}

// WatermarkKey identifies a replay watermark: the minimum salt still valid
// for a given maker on a given token and side.
type WatermarkKey struct {
	Maker   common.Address
	TokenID PositionID
	Side    OrderSide
}

// MaxUint256 is the upper bound for all balances and amounts; crediting past
// it fails with ErrOverflow.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
