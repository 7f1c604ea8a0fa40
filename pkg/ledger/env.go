package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// MaxCallDepth bounds nested calls the same way the EVM does.
const MaxCallDepth = 1024

// Env is one call frame. Self is the address whose storage and balance the
// frame operates on; under DelegateCall it differs from the address the code
// was loaded from.
type Env struct {
	ledger   *Ledger
	st       *state
	self     common.Address
	codeAddr common.Address
	caller   common.Address
	origin   common.Address
	value    *uint256.Int
	static   bool
	depth    int
}

func (e *Env) Self() common.Address        { return e.self }
func (e *Env) CodeAddress() common.Address { return e.codeAddr }
func (e *Env) Caller() common.Address      { return e.caller }
func (e *Env) Origin() common.Address      { return e.origin }
func (e *Env) IsStatic() bool              { return e.static }
func (e *Env) Depth() int                  { return e.depth }
func (e *Env) Height() uint64              { return e.ledger.height + 1 }

// Value returns a copy of the value sent with this frame.
func (e *Env) Value() *uint256.Int {
	return new(uint256.Int).Set(e.value)
}

// ChainID returns a copy of the ledger chain id.
func (e *Env) ChainID() *uint256.Int {
	return new(uint256.Int).Set(&e.ledger.chainID)
}

func (e *Env) Balance(addr common.Address) *uint256.Int {
	return e.st.balance(addr)
}

func (e *Env) CodeAt(addr common.Address) Contract {
	return e.st.code(addr)
}

func (e *Env) HasCode(addr common.Address) bool {
	return e.st.code(addr) != nil
}

// Bytecode returns the observable code bytes installed at addr.
func (e *Env) Bytecode(addr common.Address) ([]byte, error) {
	code := e.st.code(addr)
	if code == nil {
		return nil, nil
	}
	bc, ok := code.(Bytecoder)
	if !ok {
		return nil, ErrNotBytecoder
	}
	return bc.Bytecode(), nil
}

func (e *Env) GetState(key common.Hash) common.Hash {
	return e.st.getState(e.self, key)
}

func (e *Env) SetState(key, val common.Hash) error {
	if e.static {
		return ErrWriteProtection
	}
	e.st.setState(e.self, key, val)
	return nil
}

// Emit appends a log attributed to Self.
func (e *Env) Emit(topics []common.Hash, data []byte) error {
	if e.static {
		return ErrWriteProtection
	}
	e.st.addLog(Log{
		Address: e.self,
		Topics:  append([]common.Hash(nil), topics...),
		Data:    append([]byte(nil), data...),
	})
	return nil
}

func (e *Env) child(self, codeAddr, caller common.Address, value *uint256.Int, static bool) *Env {
	return &Env{
		ledger:   e.ledger,
		st:       e.st,
		self:     self,
		codeAddr: codeAddr,
		caller:   caller,
		origin:   e.origin,
		value:    value,
		static:   static,
		depth:    e.depth + 1,
	}
}

// Call moves value from Self to `to` and runs to's code, if any, with Self as
// the caller. A call to an address without code is a plain transfer. On
// failure everything the call did is rolled back and the callee's return data
// and error are handed back unchanged.
func (e *Env) Call(to common.Address, value *uint256.Int, input []byte) ([]byte, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	if e.static && !value.IsZero() {
		return nil, ErrWriteProtection
	}
	if e.depth >= MaxCallDepth {
		return nil, ErrDepth
	}
	snap := e.st.snapshot()
	if err := e.st.transfer(e.self, to, value); err != nil {
		e.st.revertTo(snap)
		return nil, err
	}
	code := e.st.code(to)
	if code == nil {
		return nil, nil
	}
	ret, err := code.Run(e.child(to, to, e.self, new(uint256.Int).Set(value), e.static), input)
	if err != nil {
		e.st.revertTo(snap)
		return ret, err
	}
	return ret, nil
}

// StaticCall runs to's code with every state write forbidden for the whole
// nested call tree.
func (e *Env) StaticCall(to common.Address, input []byte) ([]byte, error) {
	if e.depth >= MaxCallDepth {
		return nil, ErrDepth
	}
	code := e.st.code(to)
	if code == nil {
		return nil, nil
	}
	snap := e.st.snapshot()
	ret, err := code.Run(e.child(to, to, e.self, new(uint256.Int), true), input)
	if err != nil {
		e.st.revertTo(snap)
		return ret, err
	}
	return ret, nil
}

// DelegateCall runs codeAddr's code in this frame's context: same Self, same
// Caller, same Value. No value moves.
func (e *Env) DelegateCall(codeAddr common.Address, input []byte) ([]byte, error) {
	if e.depth >= MaxCallDepth {
		return nil, ErrDepth
	}
	code := e.st.code(codeAddr)
	if code == nil {
		return nil, nil
	}
	snap := e.st.snapshot()
	ret, err := code.Run(e.child(e.self, codeAddr, e.caller, new(uint256.Int).Set(e.value), e.static), input)
	if err != nil {
		e.st.revertTo(snap)
		return ret, err
	}
	return ret, nil
}

// Create deploys c at the address derived from Self and Self's nonce.
func (e *Env) Create(c Contract, input []byte) (common.Address, error) {
	if e.static {
		return common.Address{}, ErrWriteProtection
	}
	addr := crypto.CreateAddress(e.self, e.st.nonce(e.self))
	return addr, e.deploy(addr, c, input)
}

// Create2 deploys c at keccak256(0xff ++ Self ++ salt ++ keccak256(initCode))[12:].
// The address depends only on the deployer, the salt and the init code, never
// on deployment order.
func (e *Env) Create2(salt common.Hash, initCode []byte, c Contract, input []byte) (common.Address, error) {
	if e.static {
		return common.Address{}, ErrWriteProtection
	}
	addr := crypto.CreateAddress2(e.self, salt, crypto.Keccak256(initCode))
	return addr, e.deploy(addr, c, input)
}

func (e *Env) deploy(addr common.Address, c Contract, input []byte) error {
	if c == nil {
		return fmt.Errorf("%w: nil contract", ErrMalformedInput)
	}
	if e.depth >= MaxCallDepth {
		return ErrDepth
	}
	if e.st.code(addr) != nil || e.st.nonce(addr) != 0 {
		return fmt.Errorf("%w at %s", ErrContractCollision, addr.Hex())
	}
	snap := e.st.snapshot()
	e.st.setNonce(e.self, e.st.nonce(e.self)+1)
	e.st.setNonce(addr, 1)
	e.st.setCode(addr, c)
	if ctor, ok := c.(Constructor); ok {
		if err := ctor.Construct(e.child(addr, addr, e.self, new(uint256.Int), false), input); err != nil {
			e.st.revertTo(snap)
			return err
		}
	}
	return nil
}
