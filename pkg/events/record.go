// Package events turns raw ledger logs into named records and fans them out to
// live subscribers.
package events

import (
	"math/big"

	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/assets"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/registry"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TypeUnknown is the Type of a log no registered event matches.
const TypeUnknown = "unknown"

// Record is a decoded log as served to API clients and pushed to Redis.
type Record struct {
	Type    string                 `json:"type"`
	Height  uint64                 `json:"height"`
	Index   uint                   `json:"index"`
	Address common.Address         `json:"address"`
	Topics  []common.Hash          `json:"topics"`
	Data    hexutil.Bytes          `json:"data"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

type signature struct {
	id     common.Hash
	topics int
}

type entry struct {
	name string
	ev   abi.Event
}

// Decoder maps logs to records using a fixed table of known events. ERC-20 and
// ERC-721 Transfer share a topic0 and are told apart by topic count.
type Decoder struct {
	table map[signature]entry
}

func NewDecoder() *Decoder {
	return &Decoder{table: make(map[signature]entry)}
}

// Register adds ev under name. Later registrations for the same signature win.
func (d *Decoder) Register(name string, ev abi.Event) *Decoder {
	topics := 1
	for _, in := range ev.Inputs {
		if in.Indexed {
			topics++
		}
	}
	d.table[signature{id: ev.ID, topics: topics}] = entry{name: name, ev: ev}
	return d
}

// DefaultDecoder knows the registry, account and fixture token events.
func DefaultDecoder() *Decoder {
	return NewDecoder().
		Register("AccountCreated", registry.ABI.Events["AccountCreated"]).
		Register("Upgraded", account.ABI.Events["Upgraded"]).
		Register("TransactionExecuted", account.ABI.Events["TransactionExecuted"]).
		Register("ERC721.Transfer", assets.ERC721ABI.Events["Transfer"]).
		Register("ERC721.Approval", assets.ERC721ABI.Events["Approval"]).
		Register("ERC721.ApprovalForAll", assets.ERC721ABI.Events["ApprovalForAll"]).
		Register("ERC20.Transfer", assets.ERC20ABI.Events["Transfer"]).
		Register("ERC20.Approval", assets.ERC20ABI.Events["Approval"])
}

// Decode never fails: logs that do not decode come back as TypeUnknown with
// the raw topics and data.
func (d *Decoder) Decode(log ledger.Log) Record {
	rec := Record{
		Type:    TypeUnknown,
		Height:  log.Height,
		Index:   log.Index,
		Address: log.Address,
		Topics:  log.Topics,
		Data:    log.Data,
	}
	if len(log.Topics) == 0 {
		return rec
	}
	e, ok := d.table[signature{id: log.Topics[0], topics: len(log.Topics)}]
	if !ok {
		return rec
	}
	fields, err := ledger.UnpackEvent(e.ev, log)
	if err != nil {
		return rec
	}
	rec.Type = e.name
	rec.Fields = normalize(fields)
	return rec
}

// DecodeAll decodes logs in order.
func (d *Decoder) DecodeAll(logs []ledger.Log) []Record {
	out := make([]Record, len(logs))
	for i, log := range logs {
		out[i] = d.Decode(log)
	}
	return out
}

// normalize renders values in a JSON friendly way. Integers become decimal
// strings since they routinely exceed 2^53.
func normalize(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case *big.Int:
			out[k] = val.String()
		case []byte:
			out[k] = hexutil.Bytes(val)
		case [32]byte:
			out[k] = common.Hash(val)
		default:
			out[k] = v
		}
	}
	return out
}
