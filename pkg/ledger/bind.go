package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BoundContract is a Go handle on a contract at a fixed address, packing and
// unpacking calls against its ABI.
type BoundContract struct {
	ledger  *Ledger
	address common.Address
	abi     abi.ABI
}

func Bind(l *Ledger, address common.Address, a abi.ABI) *BoundContract {
	return &BoundContract{ledger: l, address: address, abi: a}
}

func (b *BoundContract) Address() common.Address {
	return b.address
}

func (b *BoundContract) ABI() abi.ABI {
	return b.abi
}

func (b *BoundContract) Ledger() *Ledger {
	return b.ledger
}

// Call runs a read-only method and returns its unpacked outputs.
func (b *BoundContract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	ret, err := b.ledger.View(ctx, Message{To: b.address, Data: input})
	if err != nil {
		return nil, err
	}
	return b.abi.Unpack(method, ret)
}

// Transact submits a state-changing call from `from` and returns the unpacked
// outputs along with the receipt.
func (b *BoundContract) Transact(ctx context.Context, from common.Address, value *uint256.Int, method string, args ...interface{}) ([]interface{}, *Receipt, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", method, err)
	}
	rcpt, err := b.ledger.Transact(ctx, Message{From: from, To: b.address, Value: value, Data: input})
	if err != nil {
		return nil, nil, err
	}
	out, err := b.abi.Unpack(method, rcpt.Return)
	if err != nil {
		return nil, rcpt, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, rcpt, nil
}
