package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

const (
	testChainID = int64(31337)
)

var testMatcher = common.HexToAddress("0x9CB495Ac087AA98D80a54C95121be52773704859")

func testOrder(maker common.Address) domain.Order {
	return domain.Order{
		Maker:    maker,
		TokenID:  common.BytesToHash([]byte("yes-token")),
		Quantity: big.NewInt(1_000_000),
		Price:    big.NewInt(200_000),
		Side:     domain.OrderSideBuy,
		Deadline: big.NewInt(1_900_000_000),
		Salt:     big.NewInt(0),
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	maker := ethcrypto.PubkeyToAddress(key.PublicKey)

	o := testOrder(maker)
	sig, err := SignOrder(o, testChainID, testMatcher, key)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	o.Signature = sig

	recovered, err := RecoverSigner(o, testChainID, testMatcher)
	require.NoError(t, err)
	assert.Equal(t, maker, recovered)
}

func TestRecoverRejectsTamperedFields(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	maker := ethcrypto.PubkeyToAddress(key.PublicKey)

	o := testOrder(maker)
	o.Signature, err = SignOrder(o, testChainID, testMatcher, key)
	require.NoError(t, err)

	// Any change to a signed field must shift the recovered address.
	tampered := o
	tampered.Price = big.NewInt(300_000)
	recovered, err := RecoverSigner(tampered, testChainID, testMatcher)
	require.NoError(t, err)
	assert.NotEqual(t, maker, recovered)

	flipped := o
	flipped.Side = domain.OrderSideSell
	recovered, err = RecoverSigner(flipped, testChainID, testMatcher)
	require.NoError(t, err)
	assert.NotEqual(t, maker, recovered)
}

func TestDigestBoundToDomain(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	maker := ethcrypto.PubkeyToAddress(key.PublicKey)

	o := testOrder(maker)

	// Same order, different chain or matcher, different digest.
	a := OrderDigest(o, testChainID, testMatcher)
	b := OrderDigest(o, testChainID+1, testMatcher)
	c := OrderDigest(o, testChainID, common.HexToAddress("0x01"))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDigestNilFieldsEncodeAsZero(t *testing.T) {
	// Absent numeric fields hash like explicit zeros; no panic either way.
	o := testOrder(common.Address{})
	o.Quantity = nil
	o.Price = nil

	z := testOrder(common.Address{})
	z.Quantity = big.NewInt(0)
	z.Price = big.NewInt(0)

	assert.Equal(t, OrderDigest(z, testChainID, testMatcher), OrderDigest(o, testChainID, testMatcher))
}

func TestRecoverRejectsBadLength(t *testing.T) {
	o := testOrder(common.Address{})
	o.Signature = []byte{1, 2, 3}
	_, err := RecoverSigner(o, testChainID, testMatcher)
	assert.Error(t, err)
}

func TestEncryptDecryptKeyRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := common.Bytes2Hex(ethcrypto.FromECDSA(key))

	blob, err := EncryptKey(keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}
