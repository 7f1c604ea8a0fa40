package controller

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/alitto/pond/v2"
	apitypes "github.com/canopy-network/tokenbound/app/devnet/controller/types"
	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"go.uber.org/zap"
)

// maxCreateBatch bounds batch materialization; every item is a ledger tx.
const maxCreateBatch = 256

// parseKey resolves a key request against the devnet defaults. A missing
// token id is an error unless anyTokenID is set (batch templates).
func (c *Controller) parseKey(in apitypes.KeyRequest, anyTokenID bool) (derive.Key, error) {
	var key derive.Key
	var err error

	key.Implementation = c.App.Policy
	if in.Implementation != "" {
		if key.Implementation, err = utils.ParseAddress(in.Implementation); err != nil {
			return derive.Key{}, badRequest(fmt.Errorf("implementation: %w", err))
		}
	}
	key.ChainID.SetUint64(c.App.Config.ChainID)
	if in.ChainID != "" {
		v, err := utils.ParseUint256(in.ChainID)
		if err != nil {
			return derive.Key{}, badRequest(fmt.Errorf("chainId: %w", err))
		}
		key.ChainID = *v
	}
	if key.TokenContract, err = utils.ParseAddress(in.TokenContract); err != nil {
		return derive.Key{}, badRequest(fmt.Errorf("tokenContract: %w", err))
	}
	if in.TokenID == "" && !anyTokenID {
		return derive.Key{}, badRequest(errors.New("tokenId is required"))
	}
	id, err := utils.ParseUint256(in.TokenID)
	if err != nil {
		return derive.Key{}, badRequest(fmt.Errorf("tokenId: %w", err))
	}
	key.TokenID = *id
	salt, err := utils.ParseUint256(in.Salt)
	if err != nil {
		return derive.Key{}, badRequest(fmt.Errorf("salt: %w", err))
	}
	key.Salt = *salt

	if err := key.Validate(); err != nil {
		return derive.Key{}, badRequest(err)
	}
	return key, nil
}

func checkRange(from, to, limit uint64) error {
	if to < from {
		return badRequest(fmt.Errorf("empty range %d..%d", from, to))
	}
	if to-from >= limit {
		return badRequest(fmt.Errorf("range spans more than %d token ids", limit))
	}
	return nil
}

// HandleDerive computes an account address from query parameters without
// touching the ledger.
func (c *Controller) HandleDerive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
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
	writeJSON(w, http.StatusOK, apitypes.DeriveResponse{
		Account:        c.App.Registry.Account(key),
		Implementation: key.Implementation,
		ChainID:        key.ChainID.Dec(),
		TokenContract:  key.TokenContract,
		TokenID:        key.TokenID.Dec(),
		Salt:           key.Salt.Dec(),
		Materialized:   c.App.Registry.IsMaterialized(key),
	})
}

// HandleDeriveBatch derives the accounts of one template over a token id range.
func (c *Controller) HandleDeriveBatch(w http.ResponseWriter, r *http.Request) {
	var in apitypes.BatchRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	key, err := c.parseKey(in.KeyRequest, true)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if err := checkRange(in.FromTokenID, in.ToTokenID, derive.MaxBatch); err != nil {
		c.writeError(w, r, err)
		return
	}
	out, err := derive.Range(r.Context(), c.App.Pool, c.App.Registry.Address(), key, in.FromTokenID, in.ToTokenID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.BatchDeriveResponse{Accounts: out})
}

// HandleCreateAccount materializes an account with the session address as
// the transaction sender. Repeating a request returns the existing account.
func (c *Controller) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	var in apitypes.CreateAccountRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	key, err := c.parseKey(in.KeyRequest, false)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	initData, err := utils.ParseHexBytes(in.InitData)
	if err != nil {
		c.writeError(w, r, badRequest(fmt.Errorf("initData: %w", err)))
		return
	}

	addr, created, err := c.App.Registry.CreateAccount(r.Context(), caller, key, initData)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		c.App.Logger.Info("Account created",
			zap.String("account", addr.Hex()),
			zap.String("key", key.String()),
			zap.String("caller", caller.Hex()))
	}
	writeJSON(w, status, apitypes.CreateAccountResponse{Account: addr, Created: created})
}

// HandleCreateBatch materializes the accounts of one template over a token id
// range. Items fail independently.
func (c *Controller) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	var in apitypes.BatchRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	template, err := c.parseKey(in.KeyRequest, true)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if err := checkRange(in.FromTokenID, in.ToTokenID, maxCreateBatch); err != nil {
		c.writeError(w, r, err)
		return
	}

	results := make([]apitypes.BatchCreateResult, in.ToTokenID-in.FromTokenID+1)
	group := c.App.Pool.NewGroupContext(r.Context())
	groupCtx := group.Context()
	for i := range results {
		tokenID := in.FromTokenID + uint64(i)
		group.Submit(func() {
			res := &results[i]
			res.TokenID = tokenID
			key := template
			key.TokenID.SetUint64(tokenID)
			res.Account = c.App.Registry.Account(key)
			if err := groupCtx.Err(); err != nil {
				res.Error = err.Error()
				return
			}
			_, created, err := c.App.Registry.CreateAccount(groupCtx, caller, key, nil)
			if err != nil {
				res.Error = err.Error()
				if reason, ok := ledger.RevertReason(err); ok {
					res.Error = reason
				}
				return
			}
			res.Created = created
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		c.writeError(w, r, err)
		return
	}

	created := 0
	for _, res := range results {
		if res.Created {
			created++
		}
	}
	c.App.Logger.Info("Batch account creation",
		zap.Uint64("from", in.FromTokenID),
		zap.Uint64("to", in.ToTokenID),
		zap.Int("created", created),
		zap.String("caller", caller.Hex()))
	writeJSON(w, http.StatusOK, apitypes.BatchCreateResponse{Results: results})
}
