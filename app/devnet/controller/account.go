package controller

import (
	"fmt"
	"net/http"

	apitypes "github.com/canopy-network/tokenbound/app/devnet/controller/types"
	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// accountAt resolves the {address} route variable to a materialized account.
func (c *Controller) accountAt(r *http.Request) (*account.Client, error) {
	addr, err := utils.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		return nil, badRequest(err)
	}
	if _, ok := c.App.Ledger.CodeAt(addr).(*account.Shell); !ok {
		return nil, fmt.Errorf("%w: no token-bound account at %s", errNotFound, addr.Hex())
	}
	return account.NewClient(c.App.Ledger, addr), nil
}

// HandleAccount describes an account. A counterfactual account can be
// described by passing its key as query parameters.
func (c *Controller) HandleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := utils.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		c.writeError(w, r, badRequest(err))
		return
	}
	info := apitypes.AccountInfo{
		Address: addr,
		Balance: c.App.Ledger.BalanceOf(addr).Dec(),
	}

	if _, ok := c.App.Ledger.CodeAt(addr).(*account.Shell); !ok {
		q := r.URL.Query()
		if q.Get("tokenContract") == "" {
			c.writeError(w, r, fmt.Errorf("%w: no token-bound account at %s", errNotFound, addr.Hex()))
			return
		}
		key, err := c.parseKey(apitypes.KeyRequest{
			Implementation: q.Get("implementation"),
			ChainID:        q.Get("chainId"),
			TokenContract:  q.Get("tokenContract"),
			TokenID:        q.Get("tokenId"),
			Salt:           q.Get("salt"),
		}, false)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		if c.App.Registry.Account(key) != addr {
			c.writeError(w, r, badRequest(fmt.Errorf("key does not derive %s", addr.Hex())))
			return
		}
		info.Implementation = key.Implementation
		info.Token = &apitypes.TokenInfo{
			ChainID:       key.ChainID.Dec(),
			TokenContract: key.TokenContract,
			TokenID:       key.TokenID.Dec(),
		}
		writeJSON(w, http.StatusOK, info)
		return
	}

	ctx := r.Context()
	acct := account.NewClient(c.App.Ledger, addr)
	info.Materialized = true
	if info.Implementation, err = acct.Implementation(ctx); err != nil {
		c.writeError(w, r, err)
		return
	}
	// The remaining views go through the implementation, which may have
	// been upgraded to something that does not answer them.
	if tok, err := acct.Token(ctx); err == nil {
		info.Token = &apitypes.TokenInfo{
			ChainID:       tok.ChainID.Dec(),
			TokenContract: tok.TokenContract,
			TokenID:       tok.TokenID.Dec(),
		}
	}
	if nonce, err := acct.Nonce(ctx); err == nil {
		info.Nonce = nonce.Dec()
	}
	if owner, err := acct.Owner(ctx); err != nil {
		info.OwnerError = err.Error()
	} else {
		info.Owner = &owner
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleExecute asks the account to perform a call with the session address
// as the authorizing caller.
func (c *Controller) HandleExecute(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	acct, err := c.accountAt(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	var in apitypes.ExecuteRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	target, err := utils.ParseAddress(in.Target)
	if err != nil {
		c.writeError(w, r, badRequest(fmt.Errorf("target: %w", err)))
		return
	}
	value, err := utils.ParseUint256(in.Value)
	if err != nil {
		c.writeError(w, r, badRequest(fmt.Errorf("value: %w", err)))
		return
	}
	data, err := utils.ParseHexBytes(in.Data)
	if err != nil {
		c.writeError(w, r, badRequest(fmt.Errorf("data: %w", err)))
		return
	}

	ret, rcpt, err := acct.ExecuteCall(r.Context(), caller, target, value, data)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	resp := c.txResponse(rcpt)
	resp.Return = ret
	writeJSON(w, http.StatusOK, resp)
}

func (c *Controller) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	acct, err := c.accountAt(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	var in apitypes.UpgradeRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	impl, err := utils.ParseAddress(in.Implementation)
	if err != nil {
		c.writeError(w, r, badRequest(fmt.Errorf("implementation: %w", err)))
		return
	}
	rcpt, err := acct.Upgrade(r.Context(), caller, impl)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.App.Logger.Info("Account upgraded",
		zap.String("account", acct.Address().Hex()),
		zap.String("implementation", impl.Hex()))
	writeJSON(w, http.StatusOK, c.txResponse(rcpt))
}

// HandleSignature checks a signature against the account's current owner.
func (c *Controller) HandleSignature(w http.ResponseWriter, r *http.Request) {
	acct, err := c.accountAt(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	var in apitypes.SignatureRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	hash, err := utils.ParseHexBytes(in.Hash)
	if err != nil || len(hash) != common.HashLength {
		c.writeError(w, r, badRequest(fmt.Errorf("hash must be %d bytes", common.HashLength)))
		return
	}
	sig, err := utils.ParseHexBytes(in.Signature)
	if err != nil {
		c.writeError(w, r, badRequest(fmt.Errorf("signature: %w", err)))
		return
	}
	valid, err := acct.IsValidSignature(r.Context(), common.BytesToHash(hash), sig)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.SignatureResponse{Valid: valid})
}
