package assets

import (
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrExceedsBalance        = ledger.Revert("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = ledger.Revert("ERC20: insufficient allowance")
	ErrZeroAddress           = ledger.Revert("ERC20: zero address")
	ErrSupplyOverflow        = ledger.Revert("ERC20: total supply overflow")
)

// ERC20 storage layout.
var (
	ftSlotMinter     = ledger.SlotOf(0)
	ftSlotSupply     = ledger.SlotOf(1)
	ftSlotBalances   = ledger.SlotOf(2)
	ftSlotAllowances = ledger.SlotOf(3)
)

// ERC20 is a minimal fungible token with 18 decimals and a single minter.
type ERC20 struct {
	name   string
	symbol string
	d      *ledger.Dispatcher
}

func NewERC20(name, symbol string) *ERC20 {
	t := &ERC20{name: name, symbol: symbol}
	t.d = ledger.NewDispatcher(ERC20ABI).
		Handle("name", func(*ledger.Env, []interface{}) ([]interface{}, error) {
			return []interface{}{t.name}, nil
		}).
		Handle("symbol", func(*ledger.Env, []interface{}) ([]interface{}, error) {
			return []interface{}{t.symbol}, nil
		}).
		Handle("decimals", func(*ledger.Env, []interface{}) ([]interface{}, error) {
			return []interface{}{uint8(18)}, nil
		}).
		Handle("totalSupply", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			return []interface{}{ledger.WordToUint(env.GetState(ftSlotSupply)).ToBig()}, nil
		}).
		Handle("balanceOf", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{ftBalance(env, args[0].(common.Address)).ToBig()}, nil
		}).
		Handle("mint", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			return nil, t.mint(env, args[0].(common.Address), ledger.BigArg(args[1]))
		}).
		Handle("transfer", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			if err := ftTransfer(env, env.Caller(), args[0].(common.Address), ledger.BigArg(args[1])); err != nil {
				return nil, err
			}
			return []interface{}{true}, nil
		}).
		Handle("transferFrom", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			from, to, amount := args[0].(common.Address), args[1].(common.Address), ledger.BigArg(args[2])
			if err := spendAllowance(env, from, env.Caller(), amount); err != nil {
				return nil, err
			}
			if err := ftTransfer(env, from, to, amount); err != nil {
				return nil, err
			}
			return []interface{}{true}, nil
		}).
		Handle("approve", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			spender, amount := args[0].(common.Address), ledger.BigArg(args[1])
			if spender == (common.Address{}) {
				return nil, ErrZeroAddress
			}
			if err := env.SetState(allowanceSlot(env.Caller(), spender), ledger.UintToWord(amount)); err != nil {
				return nil, err
			}
			if err := ledger.EmitEvent(env, ERC20ABI.Events["Approval"], env.Caller(), spender, amount.ToBig()); err != nil {
				return nil, err
			}
			return []interface{}{true}, nil
		}).
		Handle("allowance", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			slot := allowanceSlot(args[0].(common.Address), args[1].(common.Address))
			return []interface{}{ledger.WordToUint(env.GetState(slot)).ToBig()}, nil
		})
	return t
}

func (t *ERC20) Run(env *ledger.Env, input []byte) ([]byte, error) {
	return t.d.Run(env, input)
}

func (t *ERC20) Construct(env *ledger.Env, _ []byte) error {
	return env.SetState(ftSlotMinter, ledger.AddressWord(env.Caller()))
}

func ftBalanceSlot(owner common.Address) common.Hash {
	return ledger.MappingSlot(ledger.AddressWord(owner), ftSlotBalances)
}

func allowanceSlot(owner, spender common.Address) common.Hash {
	inner := ledger.MappingSlot(ledger.AddressWord(owner), ftSlotAllowances)
	return ledger.MappingSlot(ledger.AddressWord(spender), inner)
}

func ftBalance(env *ledger.Env, owner common.Address) *uint256.Int {
	return ledger.WordToUint(env.GetState(ftBalanceSlot(owner)))
}

func (t *ERC20) mint(env *ledger.Env, to common.Address, amount *uint256.Int) error {
	if env.Caller() != ledger.WordToAddress(env.GetState(ftSlotMinter)) {
		return ErrNotMinter
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	supply, overflow := new(uint256.Int).AddOverflow(ledger.WordToUint(env.GetState(ftSlotSupply)), amount)
	if overflow {
		return ErrSupplyOverflow
	}
	if err := env.SetState(ftSlotSupply, ledger.UintToWord(supply)); err != nil {
		return err
	}
	bal := ftBalance(env, to)
	if err := env.SetState(ftBalanceSlot(to), ledger.UintToWord(bal.Add(bal, amount))); err != nil {
		return err
	}
	return ledger.EmitEvent(env, ERC20ABI.Events["Transfer"], common.Address{}, to, amount.ToBig())
}

func ftTransfer(env *ledger.Env, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal := ftBalance(env, from)
	if fromBal.Lt(amount) {
		return ErrExceedsBalance
	}
	if err := env.SetState(ftBalanceSlot(from), ledger.UintToWord(fromBal.Sub(fromBal, amount))); err != nil {
		return err
	}
	toBal := ftBalance(env, to)
	if err := env.SetState(ftBalanceSlot(to), ledger.UintToWord(toBal.Add(toBal, amount))); err != nil {
		return err
	}
	return ledger.EmitEvent(env, ERC20ABI.Events["Transfer"], from, to, amount.ToBig())
}

func spendAllowance(env *ledger.Env, owner, spender common.Address, amount *uint256.Int) error {
	slot := allowanceSlot(owner, spender)
	allowed := ledger.WordToUint(env.GetState(slot))
	if allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	return env.SetState(slot, ledger.UintToWord(allowed.Sub(allowed, amount)))
}
