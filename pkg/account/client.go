package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the token an account is bound to.
type Token struct {
	ChainID       *uint256.Int   `json:"chainId"`
	TokenContract common.Address `json:"tokenContract"`
	TokenID       *uint256.Int   `json:"tokenId"`
}

// Execution is a decoded TransactionExecuted event.
type Execution struct {
	Account common.Address
	Target  common.Address
	Value   *uint256.Int
	Data    []byte
}

// Client talks to one account through its shell.
type Client struct {
	*ledger.BoundContract
}

func NewClient(l *ledger.Ledger, addr common.Address) *Client {
	return &Client{ledger.Bind(l, addr, ABI)}
}

// DeployPolicy deploys a default execution policy from deployer.
func DeployPolicy(ctx context.Context, l *ledger.Ledger, deployer common.Address) (common.Address, error) {
	return l.Deploy(ctx, deployer, NewPolicy())
}

func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.Call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (c *Client) Token(ctx context.Context) (Token, error) {
	out, err := c.Call(ctx, "token")
	if err != nil {
		return Token{}, err
	}
	return Token{
		ChainID:       uint256.MustFromBig(out[0].(*big.Int)),
		TokenContract: out[1].(common.Address),
		TokenID:       uint256.MustFromBig(out[2].(*big.Int)),
	}, nil
}

func (c *Client) Nonce(ctx context.Context) (*uint256.Int, error) {
	out, err := c.Call(ctx, "nonce")
	if err != nil {
		return nil, err
	}
	return uint256.MustFromBig(out[0].(*big.Int)), nil
}

func (c *Client) Implementation(ctx context.Context) (common.Address, error) {
	out, err := c.Call(ctx, "implementation")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// ExecuteCall asks the account to call target with value and data on behalf
// of caller. The inner call's return data is returned as is.
func (c *Client) ExecuteCall(ctx context.Context, caller, target common.Address, value *uint256.Int, data []byte) ([]byte, *ledger.Receipt, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	if data == nil {
		data = []byte{}
	}
	out, rcpt, err := c.Transact(ctx, caller, nil, "executeCall", target, value.ToBig(), data)
	if err != nil {
		return nil, rcpt, err
	}
	return out[0].([]byte), rcpt, nil
}

func (c *Client) Upgrade(ctx context.Context, caller, impl common.Address) (*ledger.Receipt, error) {
	_, rcpt, err := c.Transact(ctx, caller, nil, "upgrade", impl)
	return rcpt, err
}

// IsValidSignature reports whether sig over hash is accepted by the account.
func (c *Client) IsValidSignature(ctx context.Context, hash common.Hash, sig []byte) (bool, error) {
	out, err := c.Call(ctx, "isValidSignature", [32]byte(hash), sig)
	if err != nil {
		return false, err
	}
	return out[0].([4]byte) == MagicValidSignature, nil
}

// DecodeUpgraded returns the new implementation from an Upgraded log.
func DecodeUpgraded(log ledger.Log) (common.Address, error) {
	fields, err := ledger.UnpackEvent(ABI.Events["Upgraded"], log)
	if err != nil {
		return common.Address{}, err
	}
	impl, ok := fields["implementation"].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("upgraded: bad implementation field")
	}
	return impl, nil
}

func DecodeTransactionExecuted(log ledger.Log) (Execution, error) {
	fields, err := ledger.UnpackEvent(ABI.Events["TransactionExecuted"], log)
	if err != nil {
		return Execution{}, err
	}
	value, ok := fields["value"].(*big.Int)
	if !ok {
		return Execution{}, fmt.Errorf("transaction executed: bad value field")
	}
	return Execution{
		Account: log.Address,
		Target:  fields["target"].(common.Address),
		Value:   uint256.MustFromBig(value),
		Data:    fields["data"].([]byte),
	}, nil
}
