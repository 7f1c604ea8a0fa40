package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// rpcRevertCode is the JSON-RPC error code nodes use for reverted eth_call.
const rpcRevertCode = 3

type callArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// RPCOracle resolves ownership against an external EVM node over JSON-RPC.
type RPCOracle struct {
	client *HTTPClient
	block  string
}

func NewRPCOracle(client *HTTPClient) *RPCOracle {
	return &RPCOracle{client: client, block: "latest"}
}

// EthCall performs eth_call at the latest block.
func (o *RPCOracle) EthCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	if err := o.client.Call(ctx, "eth_call", []any{callArgs{To: to, Data: data}, o.block}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *RPCOracle) ChainID(ctx context.Context) (*uint256.Int, error) {
	var id hexutil.Big
	if err := o.client.Call(ctx, "eth_chainId", nil, &id); err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	v, overflow := uint256.FromBig(id.ToInt())
	if overflow {
		return nil, fmt.Errorf("eth_chainId: value overflows 256 bits")
	}
	return v, nil
}

// OwnerOf queries ownerOf(tokenID) on tokenContract. A reverted call is an
// unresolvable owner; transport failures are returned as they are.
func (o *RPCOracle) OwnerOf(ctx context.Context, tokenContract common.Address, tokenID *uint256.Int) (common.Address, error) {
	ret, err := o.EthCall(ctx, tokenContract, EncodeOwnerOf(tokenID))
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == rpcRevertCode {
			return common.Address{}, fmt.Errorf("%w: %w", ErrOwnershipUnresolvable, err)
		}
		return common.Address{}, err
	}
	return DecodeOwnerOf(ret)
}
