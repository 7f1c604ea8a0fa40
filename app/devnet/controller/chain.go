package controller

import (
	"net/http"

	apitypes "github.com/canopy-network/tokenbound/app/devnet/controller/types"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(r.Context()); err != nil {
			status["redis"] = "errored"
		} else {
			status["redis"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (c *Controller) HandleChain(w http.ResponseWriter, _ *http.Request) {
	info := apitypes.ChainInfo{
		ChainID:  c.App.Ledger.ChainID().Dec(),
		Height:   c.App.Ledger.Height(),
		Registry: c.App.Registry.Address(),
		Policy:   c.App.Policy,
	}
	if c.App.Fixtures != nil {
		info.Fixtures = c.App.Fixtures
	}
	writeJSON(w, http.StatusOK, info)
}

func (c *Controller) HandleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := utils.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		c.writeError(w, r, badRequest(err))
		return
	}
	l := c.App.Ledger
	writeJSON(w, http.StatusOK, apitypes.Balance{
		Address: addr,
		Balance: l.BalanceOf(addr).Dec(),
		Nonce:   l.NonceOf(addr),
		HasCode: l.HasCode(addr),
	})
}

// parseMessage builds a ledger message from a request body. from is used
// unless the request names its own sender and allowFrom is set.
func parseMessage(in apitypes.TxRequest, from common.Address, allowFrom bool) (ledger.Message, error) {
	msg := ledger.Message{From: from}
	var err error
	if allowFrom && in.From != "" {
		if msg.From, err = utils.ParseAddress(in.From); err != nil {
			return ledger.Message{}, badRequest(err)
		}
	}
	if msg.To, err = utils.ParseAddress(in.To); err != nil {
		return ledger.Message{}, badRequest(err)
	}
	if msg.Value, err = utils.ParseUint256(in.Value); err != nil {
		return ledger.Message{}, badRequest(err)
	}
	if msg.Data, err = utils.ParseHexBytes(in.Data); err != nil {
		return ledger.Message{}, badRequest(err)
	}
	return msg, nil
}

// HandleCall runs a read-only call. Anyone may name any sender.
func (c *Controller) HandleCall(w http.ResponseWriter, r *http.Request) {
	var in apitypes.TxRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	msg, err := parseMessage(in, common.Address{}, true)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	ret, err := c.App.Ledger.View(r.Context(), msg)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apitypes.CallResponse{Return: ret})
}

// HandleTx submits a transaction from the session address.
func (c *Controller) HandleTx(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	c.transact(w, r, caller, false)
}

func (c *Controller) transact(w http.ResponseWriter, r *http.Request, from common.Address, allowFrom bool) {
	var in apitypes.TxRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	msg, err := parseMessage(in, from, allowFrom)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	rcpt, err := c.App.Ledger.Transact(r.Context(), msg)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.txResponse(rcpt))
}

func (c *Controller) txResponse(rcpt *ledger.Receipt) apitypes.TxResponse {
	return apitypes.TxResponse{
		Height: rcpt.Height,
		Return: rcpt.Return,
		Events: c.decoder().DecodeAll(rcpt.Logs),
	}
}
