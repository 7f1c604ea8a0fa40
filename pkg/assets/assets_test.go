package assets

import (
	"context"
	"testing"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob      = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func newNFT(t *testing.T) (*ledger.Ledger, *NFT) {
	t.Helper()
	l := ledger.New(zaptest.NewLogger(t), 31337)
	nft, err := DeployERC721(context.Background(), l, deployer, "Bound", "BND")
	require.NoError(t, err)
	return l, nft
}

// TestERC721MintSequentialIDs verifies ids start at zero and only the minter
// may mint.
func TestERC721MintSequentialIDs(t *testing.T) {
	_, nft := newNFT(t)
	ctx := context.Background()

	for want := uint64(0); want < 3; want++ {
		id, err := nft.Mint(ctx, deployer, alice)
		require.NoError(t, err)
		assert.Equal(t, want, id.Uint64())
	}
	bal, err := nft.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), bal.Uint64())

	_, err = nft.Mint(ctx, alice, alice)
	assert.ErrorIs(t, err, ErrNotMinter)
}

func TestERC721Transfer(t *testing.T) {
	_, nft := newNFT(t)
	ctx := context.Background()
	id, err := nft.Mint(ctx, deployer, alice)
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  common.Address
		from    common.Address
		to      common.Address
		wantErr error
	}{
		{name: "stranger", caller: bob, from: alice, to: bob, wantErr: ErrNotOwnerOrApproved},
		{name: "wrong from", caller: alice, from: bob, to: bob, wantErr: ErrIncorrectOwner},
		{name: "zero recipient", caller: alice, from: alice, to: common.Address{}, wantErr: ErrTransferToZero},
		{name: "owner", caller: alice, from: alice, to: bob},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := nft.TransferFrom(ctx, tt.caller, tt.from, tt.to, id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	owner, err := nft.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

func TestERC721ApprovedOperator(t *testing.T) {
	_, nft := newNFT(t)
	ctx := context.Background()
	id, err := nft.Mint(ctx, deployer, alice)
	require.NoError(t, err)

	_, _, err = nft.Transact(ctx, alice, nil, "setApprovalForAll", bob, true)
	require.NoError(t, err)
	require.NoError(t, nft.TransferFrom(ctx, bob, alice, bob, id))

	owner, err := nft.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

// TestERC721Burn verifies a burned token no longer has an owner.
func TestERC721Burn(t *testing.T) {
	_, nft := newNFT(t)
	ctx := context.Background()
	id, err := nft.Mint(ctx, deployer, alice)
	require.NoError(t, err)

	assert.ErrorIs(t, nft.Burn(ctx, bob, id), ErrNotOwnerOrApproved)
	require.NoError(t, nft.Burn(ctx, alice, id))

	_, err = nft.OwnerOf(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTokenID)
	bal, err := nft.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

// TestERC721SafeTransferToNonReceiver verifies contracts that do not
// acknowledge tokens cannot receive them through safeTransferFrom.
func TestERC721SafeTransferToNonReceiver(t *testing.T) {
	l, nft := newNFT(t)
	ctx := context.Background()
	id, err := nft.Mint(ctx, deployer, alice)
	require.NoError(t, err)

	ft, err := DeployERC20(ctx, l, deployer, "Plain", "PLN")
	require.NoError(t, err)

	err = nft.SafeTransferFrom(ctx, alice, alice, ft.Address(), id, nil)
	assert.ErrorIs(t, err, ErrNonReceiver)

	require.NoError(t, nft.SafeTransferFrom(ctx, alice, alice, bob, id, []byte("hi")))
	owner, err := nft.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

func TestERC721SupportsInterface(t *testing.T) {
	_, nft := newNFT(t)
	for _, id := range [][4]byte{InterfaceERC165, InterfaceERC721, InterfaceERC721Metadata} {
		out, err := nft.Call(context.Background(), "supportsInterface", id)
		require.NoError(t, err)
		assert.True(t, out[0].(bool))
	}
	out, err := nft.Call(context.Background(), "supportsInterface", [4]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)
	assert.False(t, out[0].(bool))
}

func TestERC20(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t), 31337)
	ctx := context.Background()
	ft, err := DeployERC20(ctx, l, deployer, "Token", "TKN")
	require.NoError(t, err)

	require.NoError(t, ft.Mint(ctx, deployer, alice, uint256.NewInt(100)))
	assert.ErrorIs(t, ft.Mint(ctx, alice, alice, uint256.NewInt(1)), ErrNotMinter)

	require.NoError(t, ft.Transfer(ctx, alice, bob, uint256.NewInt(40)))
	assert.ErrorIs(t, ft.Transfer(ctx, alice, bob, uint256.NewInt(61)), ErrExceedsBalance)

	_, _, err = ft.Transact(ctx, bob, nil, "transferFrom", alice, bob, uint256.NewInt(1).ToBig())
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	_, _, err = ft.Transact(ctx, alice, nil, "approve", bob, uint256.NewInt(10).ToBig())
	require.NoError(t, err)
	_, _, err = ft.Transact(ctx, bob, nil, "transferFrom", alice, bob, uint256.NewInt(10).ToBig())
	require.NoError(t, err)

	aliceBal, err := ft.BalanceOf(ctx, alice)
	require.NoError(t, err)
	bobBal, err := ft.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), aliceBal.Uint64())
	assert.Equal(t, uint64(50), bobBal.Uint64())

	out, err := ft.Call(ctx, "totalSupply")
	require.NoError(t, err)
	assert.Equal(t, "100", out[0].(interface{ String() string }).String())
}
