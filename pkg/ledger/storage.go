package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// MappingSlot returns the storage slot of key in a mapping rooted at slot,
// using the solidity layout keccak256(key ++ slot).
func MappingSlot(key, slot common.Hash) common.Hash {
	return crypto.Keccak256Hash(key[:], slot[:])
}

// SlotOf returns the hash form of a plain numbered slot.
func SlotOf(n uint64) common.Hash {
	return UintToWord(uint256.NewInt(n))
}

func WordToUint(w common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(w[:])
}

func UintToWord(v *uint256.Int) common.Hash {
	return common.Hash(v.Bytes32())
}

func AddressWord(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func WordToAddress(w common.Hash) common.Address {
	return common.BytesToAddress(w[12:])
}

// BigArg converts an unpacked uint256 ABI argument. Values handed out by the
// abi decoder always fit.
func BigArg(v interface{}) *uint256.Int {
	return uint256.MustFromBig(v.(*big.Int))
}

// Big converts v for ABI packing.
func Big(v *uint256.Int) *big.Int {
	return v.ToBig()
}
