package oracle

import (
	"context"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LedgerOracle resolves ownership against the local ledger.
type LedgerOracle struct {
	ledger *ledger.Ledger
}

func NewLedgerOracle(l *ledger.Ledger) *LedgerOracle {
	return &LedgerOracle{ledger: l}
}

func (o *LedgerOracle) OwnerOf(ctx context.Context, tokenContract common.Address, tokenID *uint256.Int) (common.Address, error) {
	return QueryOwner(viewCaller{ctx: ctx, ledger: o.ledger}, tokenContract, tokenID)
}

type viewCaller struct {
	ctx    context.Context
	ledger *ledger.Ledger
}

func (v viewCaller) StaticCall(to common.Address, input []byte) ([]byte, error) {
	return v.ledger.View(v.ctx, ledger.Message{To: to, Data: input})
}
