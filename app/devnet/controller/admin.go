package controller

import (
	"fmt"
	"net/http"

	apitypes "github.com/canopy-network/tokenbound/app/devnet/controller/types"
	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/assets"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// HandleFaucet credits native balance, at most FaucetMax per request.
func (c *Controller) HandleFaucet(w http.ResponseWriter, r *http.Request) {
	var in apitypes.FaucetRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	addr, err := utils.ParseAddress(in.Address)
	if err != nil {
		c.writeError(w, r, badRequest(err))
		return
	}
	amount, err := utils.ParseUint256(in.Amount)
	if err != nil {
		c.writeError(w, r, badRequest(err))
		return
	}
	if amount.IsZero() || amount.Gt(c.App.Config.FaucetMax) {
		c.writeError(w, r, badRequest(fmt.Errorf("amount must be in 1..%s", c.App.Config.FaucetMax.Dec())))
		return
	}
	if err := c.App.Ledger.Credit(r.Context(), addr, amount); err != nil {
		c.writeError(w, r, err)
		return
	}
	c.App.Logger.Info("Faucet drip", zap.String("address", addr.Hex()), zap.String("amount", amount.Dec()))
	writeJSON(w, http.StatusOK, apitypes.Balance{
		Address: addr,
		Balance: c.App.Ledger.BalanceOf(addr).Dec(),
		Nonce:   c.App.Ledger.NonceOf(addr),
		HasCode: c.App.Ledger.HasCode(addr),
	})
}

// HandleDeploy deploys a stock contract: an ERC-721 collection, an ERC-20
// token or another execution policy.
func (c *Controller) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	var in apitypes.DeployRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	from := c.App.Config.Deployer
	if in.From != "" {
		var err error
		if from, err = utils.ParseAddress(in.From); err != nil {
			c.writeError(w, r, badRequest(err))
			return
		}
	}

	ctx := r.Context()
	var (
		addr common.Address
		err  error
	)
	switch in.Kind {
	case "erc721":
		var nft *assets.NFT
		if nft, err = assets.DeployERC721(ctx, c.App.Ledger, from, in.Name, in.Symbol); err == nil {
			addr = nft.Address()
		}
	case "erc20":
		var ft *assets.FT
		if ft, err = assets.DeployERC20(ctx, c.App.Ledger, from, in.Name, in.Symbol); err == nil {
			addr = ft.Address()
		}
	case "policy":
		addr, err = account.DeployPolicy(ctx, c.App.Ledger, from)
	default:
		err = badRequest(fmt.Errorf("unknown kind %q", in.Kind))
	}
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.App.Logger.Info("Contract deployed",
		zap.String("kind", in.Kind),
		zap.String("address", addr.Hex()),
		zap.String("from", from.Hex()))
	writeJSON(w, http.StatusCreated, apitypes.DeployResponse{Kind: in.Kind, Address: addr})
}

// HandleAdminTx submits a transaction from any address named in the body.
func (c *Controller) HandleAdminTx(w http.ResponseWriter, r *http.Request) {
	c.transact(w, r, c.App.Config.Deployer, true)
}
