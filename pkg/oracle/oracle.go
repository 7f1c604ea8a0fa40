// Package oracle answers "who currently holds token (contract, id)". The
// encoding helpers are shared by the on-ledger account policy and every
// off-ledger client so both sides ask the question the same way.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrOwnershipUnresolvable means the token has no answerable current holder:
// the token contract is missing, the query reverted, or the holder is zero.
var ErrOwnershipUnresolvable = errors.New("ownership unresolvable")

// OwnershipOracle resolves the live holder of a non-fungible token.
type OwnershipOracle interface {
	OwnerOf(ctx context.Context, tokenContract common.Address, tokenID *uint256.Int) (common.Address, error)
}

// StaticCaller performs a read-only call. *ledger.Env satisfies it.
type StaticCaller interface {
	StaticCall(to common.Address, input []byte) ([]byte, error)
}

var ownerOfABI = ledger.MustParseABI(`[
  {"type":"function","name":"ownerOf","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}
]`)

// EncodeOwnerOf builds the ownerOf(uint256) call data.
func EncodeOwnerOf(tokenID *uint256.Int) []byte {
	data, err := ownerOfABI.Pack("ownerOf", tokenID.ToBig())
	if err != nil {
		// uint256 always packs.
		panic(err)
	}
	return data
}

// DecodeOwnerOf decodes an ownerOf return value. Empty output and the zero
// address are both unresolvable.
func DecodeOwnerOf(ret []byte) (common.Address, error) {
	if len(ret) == 0 {
		return common.Address{}, fmt.Errorf("%w: empty response", ErrOwnershipUnresolvable)
	}
	out, err := ownerOfABI.Unpack("ownerOf", ret)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrOwnershipUnresolvable, err)
	}
	owner := out[0].(common.Address)
	if owner == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero holder", ErrOwnershipUnresolvable)
	}
	return owner, nil
}

// QueryOwner asks tokenContract for the holder of tokenID through sc.
func QueryOwner(sc StaticCaller, tokenContract common.Address, tokenID *uint256.Int) (common.Address, error) {
	ret, err := sc.StaticCall(tokenContract, EncodeOwnerOf(tokenID))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrOwnershipUnresolvable, err)
	}
	return DecodeOwnerOf(ret)
}
