// Package types holds the request and response bodies of the devnet API.
// Numbers are decimal or 0x-hex strings, byte strings are 0x-hex.
package types

import (
	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type ChainInfo struct {
	ChainID  string         `json:"chainId"`
	Height   uint64         `json:"height"`
	Registry common.Address `json:"registry"`
	Policy   common.Address `json:"policy"`
	Fixtures interface{}    `json:"fixtures,omitempty"`
}

type Balance struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"`
	Nonce   uint64         `json:"nonce"`
	HasCode bool           `json:"hasCode"`
}

// TxRequest is a raw call. From is only honoured on admin routes; otherwise
// the session address is the sender.
type TxRequest struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

type TxResponse struct {
	Height uint64          `json:"height"`
	Return hexutil.Bytes   `json:"return"`
	Events []events.Record `json:"events"`
}

type CallResponse struct {
	Return hexutil.Bytes `json:"return"`
}

// KeyRequest identifies an account. Implementation defaults to the genesis
// policy, ChainID to the devnet chain and Salt to zero.
type KeyRequest struct {
	Implementation string `json:"implementation,omitempty"`
	ChainID        string `json:"chainId,omitempty"`
	TokenContract  string `json:"tokenContract"`
	TokenID        string `json:"tokenId"`
	Salt           string `json:"salt,omitempty"`
}

type CreateAccountRequest struct {
	KeyRequest
	InitData string `json:"initData,omitempty"`
}

type DeriveResponse struct {
	Account        common.Address `json:"account"`
	Implementation common.Address `json:"implementation"`
	ChainID        string         `json:"chainId"`
	TokenContract  common.Address `json:"tokenContract"`
	TokenID        string         `json:"tokenId"`
	Salt           string         `json:"salt"`
	Materialized   bool           `json:"materialized"`
}

type BatchRequest struct {
	KeyRequest
	FromTokenID uint64 `json:"fromTokenId"`
	ToTokenID   uint64 `json:"toTokenId"`
}

type BatchDeriveResponse struct {
	Accounts []derive.Derived `json:"accounts"`
}

type CreateAccountResponse struct {
	Account common.Address `json:"account"`
	Created bool           `json:"created"`
}

type BatchCreateResult struct {
	TokenID uint64         `json:"tokenId"`
	Account common.Address `json:"account"`
	Created bool           `json:"created"`
	Error   string         `json:"error,omitempty"`
}

type BatchCreateResponse struct {
	Results []BatchCreateResult `json:"results"`
}

type TokenInfo struct {
	ChainID       string         `json:"chainId"`
	TokenContract common.Address `json:"tokenContract"`
	TokenID       string         `json:"tokenId"`
}

type AccountInfo struct {
	Address        common.Address  `json:"address"`
	Materialized   bool            `json:"materialized"`
	Implementation common.Address  `json:"implementation,omitempty"`
	Token          *TokenInfo      `json:"token,omitempty"`
	Owner          *common.Address `json:"owner,omitempty"`
	OwnerError     string          `json:"ownerError,omitempty"`
	Nonce          string          `json:"nonce,omitempty"`
	Balance        string          `json:"balance"`
}

type ExecuteRequest struct {
	Target string `json:"target"`
	Value  string `json:"value,omitempty"`
	Data   string `json:"data,omitempty"`
}

type UpgradeRequest struct {
	Implementation string `json:"implementation"`
}

type SignatureRequest struct {
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
}

type SignatureResponse struct {
	Valid bool `json:"valid"`
}

type ChallengeResponse struct {
	Address   common.Address `json:"address"`
	Message   string         `json:"message"`
	ExpiresAt int64          `json:"expiresAt"`
}

// SessionRequest carries a personal_sign signature over a challenge message.
type SessionRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type SessionResponse struct {
	Address   common.Address `json:"address"`
	Token     string         `json:"token"`
	ExpiresAt int64          `json:"expiresAt"`
}

type FaucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// DeployRequest deploys a stock contract. Kind is erc721, erc20 or policy.
type DeployRequest struct {
	Kind   string `json:"kind"`
	From   string `json:"from,omitempty"`
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

type DeployResponse struct {
	Kind    string         `json:"kind"`
	Address common.Address `json:"address"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// ClientMessage is sent by websocket clients to change their filter.
type ClientMessage struct {
	Action    string           `json:"action"` // "subscribe" or "unsubscribe"
	Addresses []common.Address `json:"addresses,omitempty"`
	Types     []string         `json:"types,omitempty"`
}

// ServerMessage is sent to websocket clients.
type ServerMessage struct {
	Type    string      `json:"type"` // "event", "subscribed", "unsubscribed", "error"
	Payload interface{} `json:"payload"`
}
