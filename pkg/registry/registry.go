// Package registry materializes token-bound accounts at their derived
// addresses. Creation is permissionless and idempotent.
package registry

import (
	"fmt"
	"math/big"

	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CanonicalAddress is where the registry lives on public networks and where
// the devnet installs it at genesis.
var CanonicalAddress = common.HexToAddress("0x02101dfB77FDE026414827Fdc604ddAF224F0921")

var (
	ErrInvalidKey      = ledger.Revert("invalid account key")
	ErrAddressMismatch = ledger.Revert("deployed address does not match derivation")
)

const registryJSON = `[
  {"type":"function","name":"account","inputs":[{"name":"implementation","type":"address"},{"name":"chainId","type":"uint256"},{"name":"tokenContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
  {"type":"function","name":"createAccount","inputs":[{"name":"implementation","type":"address"},{"name":"chainId","type":"uint256"},{"name":"tokenContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"salt","type":"uint256"},{"name":"initData","type":"bytes"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"nonpayable"},
  {"type":"event","name":"AccountCreated","inputs":[{"name":"account","type":"address","indexed":false},{"name":"implementation","type":"address","indexed":false},{"name":"chainId","type":"uint256","indexed":false},{"name":"tokenContract","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false},{"name":"salt","type":"uint256","indexed":false}],"anonymous":false}
]`

// ABI is the registry interface.
var ABI = ledger.MustParseABI(registryJSON)

// Registry is the on-ledger registry contract. It holds no state of its own;
// the presence of code at a derived address is the only record.
type Registry struct {
	d *ledger.Dispatcher
}

func New() *Registry {
	r := &Registry{}
	r.d = ledger.NewDispatcher(ABI).
		Handle("account", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			key, err := keyFromArgs(args)
			if err != nil {
				return nil, err
			}
			return []interface{}{derive.Address(env.Self(), key)}, nil
		}).
		Handle("createAccount", r.createAccount)
	return r
}

func (r *Registry) Run(env *ledger.Env, input []byte) ([]byte, error) {
	return r.d.Run(env, input)
}

func keyFromArgs(args []interface{}) (derive.Key, error) {
	var key derive.Key
	key.Implementation = args[0].(common.Address)
	key.ChainID = *ledger.BigArg(args[1])
	key.TokenContract = args[2].(common.Address)
	key.TokenID = *ledger.BigArg(args[3])
	key.Salt = *ledger.BigArg(args[4])
	if err := key.Validate(); err != nil {
		return derive.Key{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return key, nil
}

func keyArgs(key derive.Key) []interface{} {
	return []interface{}{key.Implementation, key.ChainID.ToBig(), key.TokenContract, key.TokenID.ToBig(), key.Salt.ToBig()}
}

// createAccount returns the existing account untouched when code is already
// there; initData of repeated calls is ignored.
func (r *Registry) createAccount(env *ledger.Env, args []interface{}) ([]interface{}, error) {
	key, err := keyFromArgs(args)
	if err != nil {
		return nil, err
	}
	initData := args[5].([]byte)

	addr := derive.Address(env.Self(), key)
	if env.HasCode(addr) {
		return []interface{}{addr}, nil
	}

	if err := ledger.EmitEvent(env, ABI.Events["AccountCreated"],
		addr, key.Implementation, key.ChainID.ToBig(), key.TokenContract, key.TokenID.ToBig(), key.Salt.ToBig()); err != nil {
		return nil, err
	}
	deployed, err := env.Create2(key.SaltHash(), derive.CreationCode(key), account.NewShell(key), initData)
	if err != nil {
		return nil, err
	}
	if deployed != addr {
		return nil, ErrAddressMismatch
	}
	return []interface{}{deployed}, nil
}

// Created is a decoded AccountCreated event.
type Created struct {
	Registry common.Address `json:"registry"`
	Account  common.Address `json:"account"`
	Key      derive.Key     `json:"-"`
}

// DecodeAccountCreated decodes an AccountCreated log.
func DecodeAccountCreated(log ledger.Log) (Created, error) {
	fields, err := ledger.UnpackEvent(ABI.Events["AccountCreated"], log)
	if err != nil {
		return Created{}, err
	}
	var c Created
	c.Registry = log.Address
	c.Account = fields["account"].(common.Address)
	c.Key.Implementation = fields["implementation"].(common.Address)
	c.Key.TokenContract = fields["tokenContract"].(common.Address)
	for name, dst := range map[string]*uint256.Int{"chainId": &c.Key.ChainID, "tokenId": &c.Key.TokenID, "salt": &c.Key.Salt} {
		v, ok := fields[name].(*big.Int)
		if !ok {
			return Created{}, fmt.Errorf("account created: bad %s field", name)
		}
		if dst.SetFromBig(v) {
			return Created{}, fmt.Errorf("account created: %s overflows", name)
		}
	}
	return c, nil
}
