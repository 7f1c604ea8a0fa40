package registry

import (
	"context"
	"fmt"

	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// Client is a Go handle on a registry instance.
type Client struct {
	*ledger.BoundContract
}

func NewClient(l *ledger.Ledger, addr common.Address) *Client {
	return &Client{ledger.Bind(l, addr, ABI)}
}

// Install places a registry at CanonicalAddress.
func Install(l *ledger.Ledger) (*Client, error) {
	if err := l.Install(CanonicalAddress, New()); err != nil {
		return nil, err
	}
	return NewClient(l, CanonicalAddress), nil
}

// Deploy places a registry at a nonce-derived address of deployer.
func Deploy(ctx context.Context, l *ledger.Ledger, deployer common.Address) (*Client, error) {
	addr, err := l.Deploy(ctx, deployer, New())
	if err != nil {
		return nil, err
	}
	return NewClient(l, addr), nil
}

// Account derives the account address for key without touching the ledger.
func (c *Client) Account(key derive.Key) common.Address {
	return derive.Address(c.Address(), key)
}

// AccountOnLedger asks the registry contract itself.
func (c *Client) AccountOnLedger(ctx context.Context, key derive.Key) (common.Address, error) {
	out, err := c.Call(ctx, "account", keyArgs(key)...)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// CreateAccount materializes the account for key on behalf of caller. The
// returned bool reports whether this call deployed it.
func (c *Client) CreateAccount(ctx context.Context, caller common.Address, key derive.Key, initData []byte) (common.Address, bool, error) {
	if err := key.Validate(); err != nil {
		return common.Address{}, false, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if initData == nil {
		initData = []byte{}
	}
	args := append(keyArgs(key), initData)
	out, rcpt, err := c.Transact(ctx, caller, nil, "createAccount", args...)
	if err != nil {
		return common.Address{}, false, err
	}
	created := false
	for _, log := range rcpt.Logs {
		if log.Address == c.Address() && len(log.Topics) > 0 && log.Topics[0] == ABI.Events["AccountCreated"].ID {
			created = true
		}
	}
	return out[0].(common.Address), created, nil
}

func (c *Client) IsMaterialized(key derive.Key) bool {
	return c.Ledger().HasCode(c.Account(key))
}
