package ctf

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

var (
	testOracle     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testCollateral = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testQuestion   = common.BytesToHash(ethcrypto.Keccak256([]byte("Will ETH be above 4000 USD on 1st Aug 2024?")))
)

func TestConditionIDDeterministic(t *testing.T) {
	a := ConditionID(testOracle, testQuestion, 2)
	b := ConditionID(testOracle, testQuestion, 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, domain.ConditionID{}, a)
}

func TestConditionIDDistinctInputs(t *testing.T) {
	base := ConditionID(testOracle, testQuestion, 2)

	otherOracle := ConditionID(testCollateral, testQuestion, 2)
	otherQuestion := ConditionID(testOracle, common.BytesToHash([]byte{1}), 2)
	otherSlots := ConditionID(testOracle, testQuestion, 3)

	assert.NotEqual(t, base, otherOracle)
	assert.NotEqual(t, base, otherQuestion)
	assert.NotEqual(t, base, otherSlots)
}

func TestCollectionIDNestingOrderMatters(t *testing.T) {
	condA := ConditionID(testOracle, testQuestion, 2)
	condB := ConditionID(testOracle, common.BytesToHash([]byte("other question")), 2)

	aThenB := CollectionID(CollectionID(domain.RootCollection, condA, IndexSetYes), condB, IndexSetYes)
	bThenA := CollectionID(CollectionID(domain.RootCollection, condB, IndexSetYes), condA, IndexSetYes)

	assert.NotEqual(t, aThenB, bThenA)
}

func TestPositionIDYesNoDistinct(t *testing.T) {
	cond := ConditionID(testOracle, testQuestion, 2)

	yes := PositionID(testCollateral, CollectionID(domain.RootCollection, cond, IndexSetYes))
	no := PositionID(testCollateral, CollectionID(domain.RootCollection, cond, IndexSetNo))

	require.NotEqual(t, yes, no)

	// Same derivation again must agree exactly.
	yes2 := PositionID(testCollateral, CollectionID(domain.RootCollection, cond, IndexSetYes))
	assert.Equal(t, yes, yes2)
}

func TestFullIndexSet(t *testing.T) {
	assert.Equal(t, uint64(0b11), FullIndexSet(2))
	assert.Equal(t, uint64(0b111), FullIndexSet(3))
}

func TestValidPartition(t *testing.T) {
	assert.True(t, ValidPartition([]uint64{1, 2}, 2))
	assert.True(t, ValidPartition([]uint64{0b11}, 2))
	assert.True(t, ValidPartition([]uint64{0b101, 0b010}, 3))

	assert.False(t, ValidPartition([]uint64{1}, 2), "incomplete cover")
	assert.False(t, ValidPartition([]uint64{1, 3}, 2), "overlapping sets")
	assert.False(t, ValidPartition([]uint64{1, 2, 0}, 2), "empty set")
	assert.False(t, ValidPartition([]uint64{1, 2, 4}, 2), "out of range")
}
