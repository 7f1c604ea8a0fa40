package assets

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrNotMinter          = ledger.Revert("caller is not the minter")
	ErrInvalidTokenID     = ledger.Revert("ERC721: invalid token ID")
	ErrNotOwnerOrApproved = ledger.Revert("ERC721: caller is not token owner or approved")
	ErrIncorrectOwner     = ledger.Revert("ERC721: transfer from incorrect owner")
	ErrTransferToZero     = ledger.Revert("ERC721: transfer to the zero address")
	ErrNonReceiver        = ledger.Revert("ERC721: transfer to non ERC721Receiver implementer")
	ErrZeroOwner          = ledger.Revert("ERC721: address zero is not a valid owner")
)

// ERC721 storage layout.
var (
	nftSlotMinter    = ledger.SlotOf(0)
	nftSlotNextID    = ledger.SlotOf(1)
	nftSlotOwners    = ledger.SlotOf(2)
	nftSlotBalances  = ledger.SlotOf(3)
	nftSlotApprovals = ledger.SlotOf(4)
	nftSlotOperators = ledger.SlotOf(5)
)

// ERC721 is a minimal non-fungible token. The deployer becomes the minter;
// ids are assigned sequentially starting at 0.
type ERC721 struct {
	name   string
	symbol string
	d      *ledger.Dispatcher
}

func NewERC721(name, symbol string) *ERC721 {
	t := &ERC721{name: name, symbol: symbol}
	t.d = ledger.NewDispatcher(ERC721ABI).
		Handle("name", func(*ledger.Env, []interface{}) ([]interface{}, error) {
			return []interface{}{t.name}, nil
		}).
		Handle("symbol", func(*ledger.Env, []interface{}) ([]interface{}, error) {
			return []interface{}{t.symbol}, nil
		}).
		Handle("minter", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			return []interface{}{ledger.WordToAddress(env.GetState(nftSlotMinter))}, nil
		}).
		Handle("mint", t.mint).
		Handle("burn", t.burn).
		Handle("ownerOf", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			owner, err := ownerOf(env, ledger.BigArg(args[0]))
			if err != nil {
				return nil, err
			}
			return []interface{}{owner}, nil
		}).
		Handle("balanceOf", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			owner := args[0].(common.Address)
			if owner == (common.Address{}) {
				return nil, ErrZeroOwner
			}
			return []interface{}{ledger.WordToUint(env.GetState(balanceSlot(owner))).ToBig()}, nil
		}).
		Handle("transferFrom", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			return nil, transfer(env, args[0].(common.Address), args[1].(common.Address), ledger.BigArg(args[2]))
		}).
		Handle("safeTransferFrom", t.safeTransferFrom).
		Handle("approve", t.approve).
		Handle("getApproved", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			id := ledger.BigArg(args[0])
			if _, err := ownerOf(env, id); err != nil {
				return nil, err
			}
			return []interface{}{ledger.WordToAddress(env.GetState(approvalSlot(id)))}, nil
		}).
		Handle("setApprovalForAll", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			operator, approved := args[0].(common.Address), args[1].(bool)
			if err := env.SetState(operatorSlot(env.Caller(), operator), boolWord(approved)); err != nil {
				return nil, err
			}
			return nil, ledger.EmitEvent(env, ERC721ABI.Events["ApprovalForAll"], env.Caller(), operator, approved)
		}).
		Handle("isApprovedForAll", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{isOperator(env, args[0].(common.Address), args[1].(common.Address))}, nil
		}).
		Handle("supportsInterface", func(_ *ledger.Env, args []interface{}) ([]interface{}, error) {
			id := args[0].([4]byte)
			return []interface{}{id == InterfaceERC165 || id == InterfaceERC721 || id == InterfaceERC721Metadata}, nil
		})
	return t
}

func (t *ERC721) Run(env *ledger.Env, input []byte) ([]byte, error) {
	return t.d.Run(env, input)
}

// Construct records the deployer as minter.
func (t *ERC721) Construct(env *ledger.Env, _ []byte) error {
	return env.SetState(nftSlotMinter, ledger.AddressWord(env.Caller()))
}

func tokenSlot(base common.Hash, id *uint256.Int) common.Hash {
	return ledger.MappingSlot(ledger.UintToWord(id), base)
}

func balanceSlot(owner common.Address) common.Hash {
	return ledger.MappingSlot(ledger.AddressWord(owner), nftSlotBalances)
}

func approvalSlot(id *uint256.Int) common.Hash {
	return tokenSlot(nftSlotApprovals, id)
}

func operatorSlot(owner, operator common.Address) common.Hash {
	inner := ledger.MappingSlot(ledger.AddressWord(owner), nftSlotOperators)
	return ledger.MappingSlot(ledger.AddressWord(operator), inner)
}

func boolWord(b bool) common.Hash {
	if b {
		return common.BigToHash(big.NewInt(1))
	}
	return common.Hash{}
}

func isOperator(env *ledger.Env, owner, operator common.Address) bool {
	return env.GetState(operatorSlot(owner, operator)) != (common.Hash{})
}

func ownerOf(env *ledger.Env, id *uint256.Int) (common.Address, error) {
	owner := ledger.WordToAddress(env.GetState(tokenSlot(nftSlotOwners, id)))
	if owner == (common.Address{}) {
		return common.Address{}, ErrInvalidTokenID
	}
	return owner, nil
}

func addBalance(env *ledger.Env, owner common.Address, delta int64) error {
	slot := balanceSlot(owner)
	bal := ledger.WordToUint(env.GetState(slot))
	if delta >= 0 {
		bal.AddUint64(bal, uint64(delta))
	} else {
		bal.SubUint64(bal, uint64(-delta))
	}
	return env.SetState(slot, ledger.UintToWord(bal))
}

func setOwner(env *ledger.Env, id *uint256.Int, owner common.Address) error {
	return env.SetState(tokenSlot(nftSlotOwners, id), ledger.AddressWord(owner))
}

func (t *ERC721) mint(env *ledger.Env, args []interface{}) ([]interface{}, error) {
	to := args[0].(common.Address)
	if env.Caller() != ledger.WordToAddress(env.GetState(nftSlotMinter)) {
		return nil, ErrNotMinter
	}
	if to == (common.Address{}) {
		return nil, ErrTransferToZero
	}
	id := ledger.WordToUint(env.GetState(nftSlotNextID))
	next := new(uint256.Int).AddUint64(id, 1)
	if err := env.SetState(nftSlotNextID, ledger.UintToWord(next)); err != nil {
		return nil, err
	}
	if err := setOwner(env, id, to); err != nil {
		return nil, err
	}
	if err := addBalance(env, to, 1); err != nil {
		return nil, err
	}
	if err := ledger.EmitEvent(env, ERC721ABI.Events["Transfer"], common.Address{}, to, id.ToBig()); err != nil {
		return nil, err
	}
	return []interface{}{id.ToBig()}, nil
}

func (t *ERC721) burn(env *ledger.Env, args []interface{}) ([]interface{}, error) {
	id := ledger.BigArg(args[0])
	owner, err := ownerOf(env, id)
	if err != nil {
		return nil, err
	}
	if !canOperate(env, owner, id) {
		return nil, ErrNotOwnerOrApproved
	}
	if err := env.SetState(approvalSlot(id), common.Hash{}); err != nil {
		return nil, err
	}
	if err := setOwner(env, id, common.Address{}); err != nil {
		return nil, err
	}
	if err := addBalance(env, owner, -1); err != nil {
		return nil, err
	}
	return nil, ledger.EmitEvent(env, ERC721ABI.Events["Transfer"], owner, common.Address{}, id.ToBig())
}

func canOperate(env *ledger.Env, owner common.Address, id *uint256.Int) bool {
	spender := env.Caller()
	return spender == owner ||
		isOperator(env, owner, spender) ||
		ledger.WordToAddress(env.GetState(approvalSlot(id))) == spender
}

func transfer(env *ledger.Env, from, to common.Address, id *uint256.Int) error {
	owner, err := ownerOf(env, id)
	if err != nil {
		return err
	}
	if !canOperate(env, owner, id) {
		return ErrNotOwnerOrApproved
	}
	if owner != from {
		return ErrIncorrectOwner
	}
	if to == (common.Address{}) {
		return ErrTransferToZero
	}
	if err := env.SetState(approvalSlot(id), common.Hash{}); err != nil {
		return err
	}
	if err := addBalance(env, from, -1); err != nil {
		return err
	}
	if err := addBalance(env, to, 1); err != nil {
		return err
	}
	if err := setOwner(env, id, to); err != nil {
		return err
	}
	return ledger.EmitEvent(env, ERC721ABI.Events["Transfer"], from, to, id.ToBig())
}

// safeTransferFrom transfers and then requires contract recipients to
// acknowledge the token with the onERC721Received magic value.
func (t *ERC721) safeTransferFrom(env *ledger.Env, args []interface{}) ([]interface{}, error) {
	from, to, id, data := args[0].(common.Address), args[1].(common.Address), ledger.BigArg(args[2]), args[3].([]byte)
	if err := transfer(env, from, to, id); err != nil {
		return nil, err
	}
	if !env.HasCode(to) {
		return nil, nil
	}
	input, err := receiverABI.Pack("onERC721Received", env.Caller(), from, id.ToBig(), data)
	if err != nil {
		return nil, err
	}
	ret, err := env.Call(to, nil, input)
	if errors.Is(err, ledger.ErrUnknownMethod) {
		return nil, ErrNonReceiver
	}
	if err != nil {
		return nil, err
	}
	if len(ret) < 4 || !bytes.Equal(ret[:4], ERC721ReceivedMagic[:]) {
		return nil, ErrNonReceiver
	}
	return nil, nil
}

func (t *ERC721) approve(env *ledger.Env, args []interface{}) ([]interface{}, error) {
	to, id := args[0].(common.Address), ledger.BigArg(args[1])
	owner, err := ownerOf(env, id)
	if err != nil {
		return nil, err
	}
	if env.Caller() != owner && !isOperator(env, owner, env.Caller()) {
		return nil, ErrNotOwnerOrApproved
	}
	if err := env.SetState(approvalSlot(id), ledger.AddressWord(to)); err != nil {
		return nil, err
	}
	return nil, ledger.EmitEvent(env, ERC721ABI.Events["Approval"], owner, to, id.ToBig())
}
