package controller

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apitypes "github.com/canopy-network/tokenbound/app/devnet/controller/types"
	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const sessionCookie = "tb_session"

type challenge struct {
	message string
	expires time.Time
}

type callerKey struct{}

// Caller returns the address authenticated by RequireSession.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

func bearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// ValidateToken checks the Authorization header against the admin token.
func (c *Controller) ValidateToken(r *http.Request) bool {
	return utils.SecretMatches(c.AdminHash, bearer(r))
}

// sessionAddress returns the address of a valid session token taken from the
// Authorization header or the session cookie.
func (c *Controller) sessionAddress(r *http.Request) (common.Address, error) {
	raw := bearer(r)
	if raw == "" {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			return common.Address{}, errors.New("no session")
		}
		raw = cookie.Value
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return common.Address{}, fmt.Errorf("invalid session: %w", err)
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || !common.IsHexAddress(sub) {
		return common.Address{}, errors.New("session has no address")
	}
	return common.HexToAddress(sub), nil
}

// RequireSession middleware
func (c *Controller) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr, err := c.sessionAddress(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, apitypes.ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, addr)))
	})
}

// RequireAdmin middleware
func (c *Controller) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.ValidateToken(r) {
			next.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, apitypes.ErrorResponse{Error: "unauthorized"})
	})
}

func challengeMessage(addr common.Address, chainID uint64, nonce string) string {
	return fmt.Sprintf("tokenbound devnet login\naddress: %s\nchain: %d\nnonce: %s", addr.Hex(), chainID, nonce)
}

// HandleChallenge issues a one-time message for ?address= to sign.
func (c *Controller) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	addr, err := utils.ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		c.writeError(w, r, badRequest(err))
		return
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		c.writeError(w, r, err)
		return
	}
	ch := challenge{
		message: challengeMessage(addr, c.App.Config.ChainID, hexutil.Encode(nonce)),
		expires: time.Now().Add(c.App.Config.ChallengeTTL),
	}
	c.challenges.Store(addr, ch)
	writeJSON(w, http.StatusOK, apitypes.ChallengeResponse{Address: addr, Message: ch.message, ExpiresAt: ch.expires.Unix()})
}

// SweepChallenges drops challenges that expired before now and returns how
// many were removed.
func (c *Controller) SweepChallenges(now time.Time) int {
	swept := 0
	c.challenges.Range(func(addr common.Address, ch challenge) bool {
		if now.After(ch.expires) {
			c.challenges.Delete(addr)
			swept++
		}
		return true
	})
	return swept
}

// HandleSession exchanges a signed challenge for a session token. Each
// challenge is usable once.
func (c *Controller) HandleSession(w http.ResponseWriter, r *http.Request) {
	var in apitypes.SessionRequest
	if err := decodeBody(r, &in); err != nil {
		c.writeError(w, r, err)
		return
	}
	addr, err := utils.ParseAddress(in.Address)
	if err != nil {
		c.writeError(w, r, badRequest(err))
		return
	}
	sig, err := utils.ParseHexBytes(in.Signature)
	if err != nil {
		c.writeError(w, r, badRequest(err))
		return
	}

	ch, ok := c.challenges.LoadAndDelete(addr)
	if !ok || time.Now().After(ch.expires) {
		writeJSON(w, http.StatusUnauthorized, apitypes.ErrorResponse{Error: "no pending challenge"})
		return
	}
	signer, err := account.Recover(common.BytesToHash(accounts.TextHash([]byte(ch.message))), sig)
	if err != nil || signer != addr {
		writeJSON(w, http.StatusUnauthorized, apitypes.ErrorResponse{Error: "invalid signature"})
		return
	}

	token, expires, err := c.IssueSession(w, addr)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.App.Logger.Info("Session issued", zap.String("address", addr.Hex()))
	writeJSON(w, http.StatusOK, apitypes.SessionResponse{Address: addr, Token: token, ExpiresAt: expires.Unix()})
}

// IssueSession signs a session token for addr and sets it as a cookie.
func (c *Controller) IssueSession(w http.ResponseWriter, addr common.Address) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(c.App.Config.SessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   addr.Hex(),
		"chain": c.App.Config.ChainID,
		"exp":   expires.Unix(),
		"iat":   now.Unix(),
	})
	ss, err := token.SignedString(c.JWTSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    ss,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(c.App.Config.SessionTTL.Seconds()),
	})
	return ss, expires, nil
}

func (c *Controller) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}
