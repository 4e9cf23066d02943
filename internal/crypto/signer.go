// Package crypto provides EIP-712 hashing, signing, and signer recovery for
// settlement orders, plus encrypted key file management. The settlement core
// itself only verifies signatures; signing is exposed for tests and tooling.
package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// EIP-712 domain constants. Every order is bound to this name/version plus
// the chain ID and matcher address supplied at digest time, so a signature
// is only valid for one deployment.
const (
	DomainName    = "TradeMatcher"
	DomainVersion = "1"
)

// Pre-computed keccak256 of the canonical EIP-712 type strings.
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(address maker_address,uint256 token_id,uint256 quantity,uint256 price,bool buy,uint256 deadline,uint256 salt)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(address maker_address,uint256 token_id,uint256 quantity,uint256 price,bool buy,uint256 deadline,uint256 salt)"),
	)

	nameHash    = ethcrypto.Keccak256([]byte(DomainName))
	versionHash = ethcrypto.Keccak256([]byte(DomainVersion))
)

// DomainSeparator returns the EIP-712 domain separator binding signatures to
// one chain and one matcher deployment.
func DomainSeparator(chainID int64, matcher common.Address) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		domainTypeHash,
		nameHash,
		versionHash,
		uint256Bytes(big.NewInt(chainID)),
		common.LeftPadBytes(matcher.Bytes(), 32),
	))
}

// OrderDigest computes the EIP-712 digest of the seven signed order fields:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func OrderDigest(o domain.Order, chainID int64, matcher common.Address) common.Hash {
	buy := big.NewInt(0)
	if o.Side.IsBuy() {
		buy = big.NewInt(1)
	}

	structHash := ethcrypto.Keccak256(
		orderTypeHash,
		common.LeftPadBytes(o.Maker.Bytes(), 32),
		o.TokenID.Bytes(),
		uint256Bytes(o.Quantity),
		uint256Bytes(o.Price),
		uint256Bytes(buy),
		uint256Bytes(o.Deadline),
		uint256Bytes(o.Salt),
	)

	sep := DomainSeparator(chainID, matcher)
	return common.BytesToHash(ethcrypto.Keccak256(
		[]byte{0x19, 0x01},
		sep.Bytes(),
		structHash,
	))
}

// SignOrder signs the order's EIP-712 digest with the given private key and
// returns the 65-byte signature (r || s || v, v in {27, 28}).
func SignOrder(o domain.Order, chainID int64, matcher common.Address, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := OrderDigest(o, chainID, matcher)

	sig, err := ethcrypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign order: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 tooling expects {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// RecoverSigner recovers the address that produced the order's signature.
// It accepts v in either {0,1} or {27,28} form.
func RecoverSigner(o domain.Order, chainID int64, matcher common.Address) (common.Address, error) {
	if len(o.Signature) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(o.Signature))
	}

	sig := make([]byte, 65)
	copy(sig, o.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := OrderDigest(o, chainID, matcher)
	pub, err := ethcrypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// uint256Bytes returns the 32-byte big-endian representation of n. A nil
// value encodes as zero so a malformed order cannot panic the caller.
func uint256Bytes(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}
