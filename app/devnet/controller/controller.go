package controller

import (
	"net/http"

	"github.com/canopy-network/tokenbound/app/devnet/types"
	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

type Controller struct {
	App       *types.App
	AdminHash []byte // bcrypt; nil disables the admin routes
	JWTSecret []byte

	// outstanding login challenges by address
	challenges *xsync.Map[common.Address, challenge]
}

// NewController returns a new controller. ADMIN_TOKEN may be given in plain
// text or as a bcrypt hash.
func NewController(app *types.App) *Controller {
	c := &Controller{
		App:        app,
		JWTSecret:  app.Config.SessionSecret,
		challenges: xsync.NewMap[common.Address, challenge](),
	}
	if app.Config.AdminToken != "" {
		hash, err := utils.HashOrRead(app.Config.AdminToken)
		if err != nil {
			app.Logger.Warn("Admin routes disabled", zap.Error(err))
		}
		c.AdminHash = hash
	}
	return c
}

func (c *Controller) decoder() *events.Decoder {
	return c.App.Hub.Decoder()
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Echo back the origin to allow credentials with any origin
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", c.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/chain", c.HandleChain).Methods(http.MethodGet)
	r.HandleFunc("/api/balances/{address}", c.HandleBalance).Methods(http.MethodGet)
	r.HandleFunc("/api/call", c.HandleCall).Methods(http.MethodPost)

	// Sessions: sign a challenge, get a token naming your address
	r.HandleFunc("/api/auth/challenge", c.HandleChallenge).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/session", c.HandleSession).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleLogout).Methods(http.MethodPost)

	// Registry
	r.HandleFunc("/api/registry/derive", c.HandleDerive).Methods(http.MethodGet)
	r.HandleFunc("/api/registry/derive/batch", c.HandleDeriveBatch).Methods(http.MethodPost)
	r.Handle("/api/registry/accounts", c.RequireSession(http.HandlerFunc(c.HandleCreateAccount))).Methods(http.MethodPost)
	r.Handle("/api/registry/accounts/batch", c.RequireSession(http.HandlerFunc(c.HandleCreateBatch))).Methods(http.MethodPost)

	// Accounts
	r.HandleFunc("/api/accounts/{address}", c.HandleAccount).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts/{address}/signature", c.HandleSignature).Methods(http.MethodPost)
	r.Handle("/api/accounts/{address}/execute", c.RequireSession(http.HandlerFunc(c.HandleExecute))).Methods(http.MethodPost)
	r.Handle("/api/accounts/{address}/upgrade", c.RequireSession(http.HandlerFunc(c.HandleUpgrade))).Methods(http.MethodPost)

	// Raw transactions from the session address
	r.Handle("/api/tx", c.RequireSession(http.HandlerFunc(c.HandleTx))).Methods(http.MethodPost)

	// Admin: funding, stock deployments and impersonation
	r.Handle("/api/admin/faucet", c.RequireAdmin(http.HandlerFunc(c.HandleFaucet))).Methods(http.MethodPost)
	r.Handle("/api/admin/deploy", c.RequireAdmin(http.HandlerFunc(c.HandleDeploy))).Methods(http.MethodPost)
	r.Handle("/api/admin/tx", c.RequireAdmin(http.HandlerFunc(c.HandleAdminTx))).Methods(http.MethodPost)

	// WebSocket endpoint for live ledger events
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}
