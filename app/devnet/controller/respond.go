package controller

import (
	"errors"
	"fmt"
	"net/http"

	apitypes "github.com/canopy-network/tokenbound/app/devnet/controller/types"
	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/oracle"
	"github.com/canopy-network/tokenbound/pkg/registry"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

// executionFailures are ledger outcomes of a well-formed request that the
// chain refused.
var executionFailures = []error{
	ledger.ErrInsufficientBalance,
	ledger.ErrBalanceOverflow,
	ledger.ErrWriteProtection,
	ledger.ErrDepth,
	ledger.ErrContractCollision,
	ledger.ErrUnknownMethod,
	ledger.ErrNonPayable,
	ledger.ErrNoReceive,
	oracle.ErrOwnershipUnresolvable,
}

// statusFor maps an error to the HTTP status the API reports it with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ledger.ErrMalformedInput),
		errors.Is(err, registry.ErrInvalidKey),
		errors.Is(err, derive.ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotAdmitted):
		return http.StatusServiceUnavailable
	}
	if _, ok := ledger.RevertReason(err); ok {
		return http.StatusUnprocessableEntity
	}
	for _, e := range executionFailures {
		if errors.Is(err, e) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (c *Controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := apitypes.ErrorResponse{Error: err.Error()}
	if reason, ok := ledger.RevertReason(err); ok {
		body.Reason = reason
	}
	if status == http.StatusInternalServerError {
		c.App.Logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

// decodeBody reads a JSON body of at most maxBodySize bytes into v.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := utils.ReadCapped(r.Body, maxBodySize)
	if err != nil {
		return badRequest(err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest(fmt.Errorf("bad json: %w", err))
	}
	return nil
}
