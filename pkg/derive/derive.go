// Package derive computes token-bound account addresses. Everything here is
// pure: the same key and registry always produce the same address, before and
// after the account is materialized.
package derive

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

var (
	ErrZeroImplementation = errors.New("implementation must not be the zero address")
	ErrZeroTokenContract  = errors.New("token contract must not be the zero address")
	ErrMalformedCode      = errors.New("not a token-bound account runtime code")
)

// Proxy bytecode layout (ERC-6551 reference shell). The constructor prefix
// copies the runtime out; the runtime delegatecalls to the address between
// the two fragments and bubbles the result.
var (
	constructorPrefix = common.FromHex("3d60ad80600a3d3981f3")
	runtimeHead       = common.FromHex("363d3d373d3d3d363d73")
	runtimeTail       = common.FromHex("5af43d82803e903d91602b57fd5bf3")
)

const (
	wordSize   = 32
	footerSize = 4 * wordSize
	// RuntimeSize is the length of every account runtime code.
	RuntimeSize = 10 + common.AddressLength + 15 + footerSize
)

// Key identifies one account. It is a plain comparable value.
type Key struct {
	Implementation common.Address
	ChainID        uint256.Int
	TokenContract  common.Address
	TokenID        uint256.Int
	Salt           uint256.Int
}

// NewKey is a convenience constructor for small numeric fields.
func NewKey(impl common.Address, chainID uint64, token common.Address, tokenID uint64, salt uint64) Key {
	k := Key{Implementation: impl, TokenContract: token}
	k.ChainID.SetUint64(chainID)
	k.TokenID.SetUint64(tokenID)
	k.Salt.SetUint64(salt)
	return k
}

// Validate rejects keys that can never yield a usable account.
func (k Key) Validate() error {
	if k.Implementation == (common.Address{}) {
		return ErrZeroImplementation
	}
	if k.TokenContract == (common.Address{}) {
		return ErrZeroTokenContract
	}
	return nil
}

// SaltHash is the salt as the 32-byte CREATE2 salt.
func (k Key) SaltHash() common.Hash {
	return common.Hash(k.Salt.Bytes32())
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		k.Implementation.Hex(), k.ChainID.Dec(), k.TokenContract.Hex(), k.TokenID.Dec(), k.Salt.Dec())
}

// footer is abi.encode(salt, chainId, tokenContract, tokenId).
func (k Key) footer() []byte {
	out := make([]byte, 0, footerSize)
	salt := k.Salt.Bytes32()
	chain := k.ChainID.Bytes32()
	token := common.BytesToHash(k.TokenContract.Bytes())
	id := k.TokenID.Bytes32()
	out = append(out, salt[:]...)
	out = append(out, chain[:]...)
	out = append(out, token[:]...)
	out = append(out, id[:]...)
	return out
}

// RuntimeCode is the code installed at the account address.
func RuntimeCode(k Key) []byte {
	out := make([]byte, 0, RuntimeSize)
	out = append(out, runtimeHead...)
	out = append(out, k.Implementation.Bytes()...)
	out = append(out, runtimeTail...)
	out = append(out, k.footer()...)
	return out
}

// CreationCode is the init code whose hash goes into the CREATE2 preimage.
func CreationCode(k Key) []byte {
	rt := RuntimeCode(k)
	out := make([]byte, 0, len(constructorPrefix)+len(rt))
	out = append(out, constructorPrefix...)
	return append(out, rt...)
}

// ParseRuntimeCode recovers the key baked into an account's runtime code.
func ParseRuntimeCode(code []byte) (Key, error) {
	if len(code) != RuntimeSize {
		return Key{}, fmt.Errorf("%w: length %d", ErrMalformedCode, len(code))
	}
	head := len(runtimeHead)
	implEnd := head + common.AddressLength
	if string(code[:head]) != string(runtimeHead) || string(code[implEnd:implEnd+len(runtimeTail)]) != string(runtimeTail) {
		return Key{}, ErrMalformedCode
	}

	var k Key
	k.Implementation = common.BytesToAddress(code[head:implEnd])
	footer := code[len(code)-footerSize:]
	k.Salt.SetBytes32(footer[0:wordSize])
	k.ChainID.SetBytes32(footer[wordSize : 2*wordSize])
	k.TokenContract = common.BytesToAddress(footer[2*wordSize+12 : 3*wordSize])
	k.TokenID.SetBytes32(footer[3*wordSize:])
	return k, nil
}

// Address returns the account address for k under registry:
// keccak256(0xff ++ registry ++ salt ++ keccak256(creationCode))[12:].
func Address(registry common.Address, k Key) common.Address {
	initHash := keccak(CreationCode(k))
	salt := k.SaltHash()
	return common.BytesToAddress(keccak([]byte{0xff}, registry.Bytes(), salt[:], initHash)[12:])
}

func keccak(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
