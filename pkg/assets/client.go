package assets

import (
	"context"
	"math/big"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NFT is a Go handle on a deployed ERC721 fixture.
type NFT struct {
	*ledger.BoundContract
}

func NewNFT(l *ledger.Ledger, addr common.Address) *NFT {
	return &NFT{ledger.Bind(l, addr, ERC721ABI)}
}

// DeployERC721 deploys a fresh collection with deployer as minter.
func DeployERC721(ctx context.Context, l *ledger.Ledger, deployer common.Address, name, symbol string) (*NFT, error) {
	addr, err := l.Deploy(ctx, deployer, NewERC721(name, symbol))
	if err != nil {
		return nil, err
	}
	return NewNFT(l, addr), nil
}

// Mint mints the next token id to `to`.
func (n *NFT) Mint(ctx context.Context, minter, to common.Address) (*uint256.Int, error) {
	out, _, err := n.Transact(ctx, minter, nil, "mint", to)
	if err != nil {
		return nil, err
	}
	return uint256.MustFromBig(out[0].(*big.Int)), nil
}

func (n *NFT) TransferFrom(ctx context.Context, caller, from, to common.Address, id *uint256.Int) error {
	_, _, err := n.Transact(ctx, caller, nil, "transferFrom", from, to, id.ToBig())
	return err
}

func (n *NFT) SafeTransferFrom(ctx context.Context, caller, from, to common.Address, id *uint256.Int, data []byte) error {
	_, _, err := n.Transact(ctx, caller, nil, "safeTransferFrom", from, to, id.ToBig(), data)
	return err
}

func (n *NFT) Burn(ctx context.Context, caller common.Address, id *uint256.Int) error {
	_, _, err := n.Transact(ctx, caller, nil, "burn", id.ToBig())
	return err
}

func (n *NFT) OwnerOf(ctx context.Context, id *uint256.Int) (common.Address, error) {
	out, err := n.Call(ctx, "ownerOf", id.ToBig())
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (n *NFT) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	out, err := n.Call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return uint256.MustFromBig(out[0].(*big.Int)), nil
}

// FT is a Go handle on a deployed ERC20 fixture.
type FT struct {
	*ledger.BoundContract
}

func NewFT(l *ledger.Ledger, addr common.Address) *FT {
	return &FT{ledger.Bind(l, addr, ERC20ABI)}
}

func DeployERC20(ctx context.Context, l *ledger.Ledger, deployer common.Address, name, symbol string) (*FT, error) {
	addr, err := l.Deploy(ctx, deployer, NewERC20(name, symbol))
	if err != nil {
		return nil, err
	}
	return NewFT(l, addr), nil
}

func (f *FT) Mint(ctx context.Context, minter, to common.Address, amount *uint256.Int) error {
	_, _, err := f.Transact(ctx, minter, nil, "mint", to, amount.ToBig())
	return err
}

func (f *FT) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	_, _, err := f.Transact(ctx, from, nil, "transfer", to, amount.ToBig())
	return err
}

func (f *FT) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	out, err := f.Call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return uint256.MustFromBig(out[0].(*big.Int)), nil
}

// TransferCalldata encodes transfer(to, amount), for use as inner call data.
func TransferCalldata(to common.Address, amount *uint256.Int) []byte {
	data, err := ERC20ABI.Pack("transfer", to, amount.ToBig())
	if err != nil {
		panic(err)
	}
	return data
}

// TransferFromCalldata encodes ERC721 transferFrom(from, to, id).
func TransferFromCalldata(from, to common.Address, id *uint256.Int) []byte {
	data, err := ERC721ABI.Pack("transferFrom", from, to, id.ToBig())
	if err != nil {
		panic(err)
	}
	return data
}
