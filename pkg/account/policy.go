package account

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/oracle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnauthorized          = ledger.Revert("Caller is not owner")
	ErrZeroTarget            = ledger.Revert("call target is the zero address")
	ErrInvalidImplementation = ledger.Revert("implementation is not an account policy")
	ErrNotBound              = errors.New("code at account address is not a token-bound shell")
	ErrForeignChain          = errors.New("account is bound to another chain")
)

var nonceSlot = crypto.Keccak256Hash([]byte("tokenbound.account.nonce"))

// Policy is the default execution policy. It only ever runs delegated from a
// Shell, so Self is the account address and storage is the account's.
type Policy struct {
	d *ledger.Dispatcher
}

func NewPolicy() *Policy {
	p := &Policy{}
	p.d = ledger.NewDispatcher(ABI).
		Handle("owner", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			owner, err := Owner(env)
			if err != nil {
				return nil, err
			}
			return []interface{}{owner}, nil
		}).
		Handle("token", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			key, err := boundKey(env)
			if err != nil {
				return nil, err
			}
			return []interface{}{key.ChainID.ToBig(), key.TokenContract, key.TokenID.ToBig()}, nil
		}).
		Handle("nonce", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			return []interface{}{ledger.WordToUint(env.GetState(nonceSlot)).ToBig()}, nil
		}).
		Handle("executeCall", p.executeCall).
		Handle("upgrade", p.upgrade).
		Handle("isValidSignature", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			hash, sig := args[0].([32]byte), args[1].([]byte)
			if validSignature(env, common.Hash(hash), sig) {
				return []interface{}{MagicValidSignature}, nil
			}
			return []interface{}{MagicInvalidSignature}, nil
		}).
		Handle("supportsInterface", func(_ *ledger.Env, args []interface{}) ([]interface{}, error) {
			switch args[0].([4]byte) {
			case InterfaceERC165, InterfaceAccount, InterfaceERC721Receiver, InterfaceERC1155Receiver, InterfaceERC1271:
				return []interface{}{true}, nil
			}
			return []interface{}{false}, nil
		}).
		Handle("onERC721Received", acknowledge("onERC721Received")).
		Handle("onERC1155Received", acknowledge("onERC1155Received")).
		Handle("onERC1155BatchReceived", acknowledge("onERC1155BatchReceived")).
		Receive(func(*ledger.Env) error { return nil })
	return p
}

func (p *Policy) Run(env *ledger.Env, input []byte) ([]byte, error) {
	return p.d.Run(env, input)
}

func acknowledge(method string) ledger.Method {
	sel := selector(method)
	return func(*ledger.Env, []interface{}) ([]interface{}, error) {
		return []interface{}{sel}, nil
	}
}

func boundKey(env *ledger.Env) (derive.Key, error) {
	code, err := env.Bytecode(env.Self())
	if err != nil || code == nil {
		return derive.Key{}, ErrNotBound
	}
	key, err := derive.ParseRuntimeCode(code)
	if err != nil {
		return derive.Key{}, fmt.Errorf("%w: %w", ErrNotBound, err)
	}
	return key, nil
}

// Owner resolves the live holder of the token the account in env is bound
// to. Nothing is cached: every call asks the token contract again.
func Owner(env *ledger.Env) (common.Address, error) {
	key, err := boundKey(env)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", oracle.ErrOwnershipUnresolvable, err)
	}
	if key.ChainID != *env.ChainID() {
		return common.Address{}, fmt.Errorf("%w: %w %s", oracle.ErrOwnershipUnresolvable, ErrForeignChain, key.ChainID.Dec())
	}
	return oracle.QueryOwner(env, key.TokenContract, &key.TokenID)
}

// authorize checks the immediate caller against the owner resolved at this
// instant.
func authorize(env *ledger.Env) error {
	owner, err := Owner(env)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if env.Caller() != owner {
		return ErrUnauthorized
	}
	return nil
}

func bumpNonce(env *ledger.Env) error {
	n := ledger.WordToUint(env.GetState(nonceSlot))
	n.AddUint64(n, 1)
	return env.SetState(nonceSlot, ledger.UintToWord(n))
}

// executeCall checks, then records its effects, then calls out.
func (p *Policy) executeCall(env *ledger.Env, args []interface{}) ([]interface{}, error) {
	target, value, data := args[0].(common.Address), ledger.BigArg(args[1]), args[2].([]byte)
	if err := authorize(env); err != nil {
		return nil, err
	}
	if target == (common.Address{}) {
		return nil, ErrZeroTarget
	}
	if err := bumpNonce(env); err != nil {
		return nil, err
	}
	if err := ledger.EmitEvent(env, ABI.Events["TransactionExecuted"], target, value.ToBig(), data); err != nil {
		return nil, err
	}
	ret, err := env.Call(target, value, data)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		ret = []byte{}
	}
	return []interface{}{ret}, nil
}

// upgrade repoints the shell. The new code runs from the next call on.
func (p *Policy) upgrade(env *ledger.Env, args []interface{}) ([]interface{}, error) {
	impl := args[0].(common.Address)
	if err := authorize(env); err != nil {
		return nil, err
	}
	if !isPolicy(env, impl) {
		return nil, ErrInvalidImplementation
	}
	if err := bumpNonce(env); err != nil {
		return nil, err
	}
	if err := env.SetState(ImplementationSlot, ledger.AddressWord(impl)); err != nil {
		return nil, err
	}
	return nil, ledger.EmitEvent(env, ABI.Events["Upgraded"], impl)
}

// isPolicy reports whether impl can take over the account: it is neither this
// account nor any other shell, and it claims the account interface when
// asked with a static call.
func isPolicy(env *ledger.Env, impl common.Address) bool {
	if impl == (common.Address{}) || impl == env.Self() {
		return false
	}
	if _, shell := env.CodeAt(impl).(*Shell); shell || !env.HasCode(impl) {
		return false
	}
	input, err := ABI.Pack("supportsInterface", InterfaceAccount)
	if err != nil {
		return false
	}
	ret, err := env.StaticCall(impl, input)
	if err != nil {
		return false
	}
	out, err := ABI.Unpack("supportsInterface", ret)
	if err != nil || len(out) != 1 {
		return false
	}
	ok, _ := out[0].(bool)
	return ok
}

// validSignature accepts a secp256k1 signature by the owner, or, when the
// owner is itself a contract, whatever that contract accepts.
func validSignature(env *ledger.Env, hash common.Hash, sig []byte) bool {
	owner, err := Owner(env)
	if err != nil {
		return false
	}
	if env.HasCode(owner) {
		input, err := ABI.Pack("isValidSignature", [32]byte(hash), sig)
		if err != nil {
			return false
		}
		ret, err := env.StaticCall(owner, input)
		return err == nil && len(ret) >= 4 && bytes.Equal(ret[:4], MagicValidSignature[:])
	}
	signer, err := Recover(hash, sig)
	return err == nil && signer == owner
}

// Recover returns the address that produced a 65-byte [R || S || V]
// signature over hash. V may be 0/1 or 27/28.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash[:], normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
