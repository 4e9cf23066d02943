// Package ctf implements the conditional-token position algebra: pure,
// stateless keccak256 derivations of condition, collection, and position
// identifiers. Identical inputs always produce identical outputs, so
// independent parties agree on identifiers without any shared state.
package ctf

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Binary-outcome index sets: 0b01 is "yes", 0b10 is "no".
const (
	IndexSetYes uint64 = 1
	IndexSetNo  uint64 = 2
)

// ConditionID derives the identifier of a condition from its oracle, the
// question identifier, and the outcome slot count:
//
//	keccak256(oracle ++ questionID ++ uint256(slotCount))
func ConditionID(oracle common.Address, questionID common.Hash, slotCount int) domain.ConditionID {
	return common.BytesToHash(ethcrypto.Keccak256(
		oracle.Bytes(),
		questionID.Bytes(),
		uint256Bytes(big.NewInt(int64(slotCount))),
	))
}

// CollectionID derives a collection identifier from a parent collection, a
// condition, and an outcome index-set bitmask:
//
//	keccak256(parent ++ conditionID ++ uint256(indexSet))
//
// The combination rule is a fixed nesting order, not algebraically
// commutative: partitioning by condition A then B yields a different
// collection than B then A.
func CollectionID(parent domain.CollectionID, conditionID domain.ConditionID, indexSet uint64) domain.CollectionID {
	return common.BytesToHash(ethcrypto.Keccak256(
		parent.Bytes(),
		conditionID.Bytes(),
		uint256Bytes(new(big.Int).SetUint64(indexSet)),
	))
}

// PositionID derives the fungible token identifier of a position from the
// collateral asset and a collection:
//
//	keccak256(collateral ++ collectionID)
func PositionID(collateral common.Address, collectionID domain.CollectionID) domain.PositionID {
	return common.BytesToHash(ethcrypto.Keccak256(
		collateral.Bytes(),
		collectionID.Bytes(),
	))
}

// FullIndexSet returns the bitmask covering every outcome slot of a
// condition with the given slot count.
func FullIndexSet(slotCount int) uint64 {
	return (uint64(1) << uint(slotCount)) - 1
}

// ValidPartition reports whether the index sets are pairwise disjoint,
// individually non-empty, within range, and together cover the full
// outcome space of a condition with slotCount slots.
func ValidPartition(indexSets []uint64, slotCount int) bool {
	full := FullIndexSet(slotCount)
	var union uint64
	for _, set := range indexSets {
		if set == 0 || set&^full != 0 {
			return false
		}
		if union&set != 0 {
			return false
		}
		union |= set
	}
	return union == full
}

// uint256Bytes returns the 32-byte big-endian representation of n.
func uint256Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}
