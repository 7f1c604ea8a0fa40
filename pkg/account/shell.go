package account

import (
	"math/big"

	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrAlreadyInitialized = ledger.Revert("account already initialized")
	ErrNoImplementation   = ledger.Revert("implementation has no code")
)

var (
	// ImplementationSlot is the EIP-1967 implementation slot,
	// keccak256("eip1967.proxy.implementation") - 1.
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

	initializedSlot = crypto.Keccak256Hash([]byte("tokenbound.account.initialized"))
	initializedWord = common.BigToHash(big.NewInt(1))
)

// Shell is the code living at a token-bound account address. It answers
// implementation() itself and delegates everything else, value included, to
// the current implementation in its own storage context.
type Shell struct {
	key  derive.Key
	code []byte
}

func NewShell(key derive.Key) *Shell {
	return &Shell{key: key, code: derive.RuntimeCode(key)}
}

func (s *Shell) Key() derive.Key {
	return s.key
}

// Bytecode exposes the runtime code so the implementation can read the bound
// token from its footer.
func (s *Shell) Bytecode() []byte {
	return append([]byte(nil), s.code...)
}

// Implementation returns the pointer stored in the EIP-1967 slot, or the
// implementation baked into the code when the slot was never written.
func (s *Shell) Implementation(env *ledger.Env) common.Address {
	if w := env.GetState(ImplementationSlot); w != (common.Hash{}) {
		return ledger.WordToAddress(w)
	}
	return s.key.Implementation
}

// Construct runs once, inside the deployment frame. Non-empty initData is
// delegated to the implementation with the deployer as caller.
func (s *Shell) Construct(env *ledger.Env, initData []byte) error {
	if env.GetState(initializedSlot) != (common.Hash{}) {
		return ErrAlreadyInitialized
	}
	if err := env.SetState(initializedSlot, initializedWord); err != nil {
		return err
	}
	if len(initData) == 0 {
		return nil
	}
	_, err := s.delegate(env, initData)
	return err
}

func (s *Shell) Run(env *ledger.Env, input []byte) ([]byte, error) {
	if ledger.Selector(ABI.Methods["implementation"], input) {
		return ABI.Methods["implementation"].Outputs.Pack(s.Implementation(env))
	}
	return s.delegate(env, input)
}

func (s *Shell) delegate(env *ledger.Env, input []byte) ([]byte, error) {
	impl := s.Implementation(env)
	if !env.HasCode(impl) {
		return nil, ErrNoImplementation
	}
	return env.DelegateCall(impl, input)
}
