package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// Contract is code installed at an address. Run executes one call frame; a
// non-nil error reverts everything the frame did.
type Contract interface {
	Run(env *Env, input []byte) ([]byte, error)
}

// Constructor is implemented by contracts that need one-time setup when they
// are deployed. Construct runs inside the deployment frame, with the new
// address as Self and the deployer as Caller.
type Constructor interface {
	Construct(env *Env, input []byte) error
}

// Bytecoder is implemented by contracts whose code bytes are observable, the
// way EXTCODECOPY exposes them on an EVM chain.
type Bytecoder interface {
	Bytecode() []byte
}

// Log is an event emitted by a contract. Height and Index are assigned when
// the enclosing transaction commits.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
	Height  uint64         `json:"height"`
	Index   uint           `json:"index"`
}

// LogSink receives the logs of every committed transaction, in commit order.
// Publish is called with the ledger lock held and must not block.
type LogSink interface {
	Publish(logs []Log)
}
