package ledger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Method handles one decoded ABI call. args are in declaration order with the
// go-ethereum abi types (common.Address, *big.Int, []byte, [N]byte...), and the
// returned values are packed against the method outputs.
type Method func(env *Env, args []interface{}) ([]interface{}, error)

type route struct {
	method abi.Method
	fn     Method
}

// Dispatcher routes call input to Go handlers by ABI selector. Payability is
// taken from the method's stateMutability in the ABI definition.
type Dispatcher struct {
	abi     abi.ABI
	routes  map[[4]byte]route
	receive func(env *Env) error
}

// MustParseABI parses a JSON ABI definition and panics on error. Intended for
// package-level ABI declarations.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

func NewDispatcher(a abi.ABI) *Dispatcher {
	return &Dispatcher{
		abi:    a,
		routes: make(map[[4]byte]route),
	}
}

// ABI returns the definition the dispatcher was built from.
func (d *Dispatcher) ABI() abi.ABI {
	return d.abi
}

// Handle binds fn to the named method. Unknown names panic: handlers and ABI
// live side by side, so a mismatch is a programming error.
func (d *Dispatcher) Handle(name string, fn Method) *Dispatcher {
	m, ok := d.abi.Methods[name]
	if !ok {
		panic(fmt.Sprintf("dispatcher: method %q not in abi", name))
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	d.routes[sel] = route{method: m, fn: fn}
	return d
}

// Receive sets the handler for calls with empty input.
func (d *Dispatcher) Receive(fn func(env *Env) error) *Dispatcher {
	d.receive = fn
	return d
}

// Run decodes input, runs the matching handler and packs its results.
func (d *Dispatcher) Run(env *Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		if d.receive == nil {
			return nil, ErrNoReceive
		}
		return nil, d.receive(env)
	}
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: short selector", ErrMalformedInput)
	}
	var sel [4]byte
	copy(sel[:], input[:4])
	r, ok := d.routes[sel]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownMethod, sel)
	}
	if !r.method.IsPayable() && !env.value.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNonPayable, r.method.Name)
	}
	args, err := r.method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, r.method.Name, err)
	}
	out, err := r.fn(env, args)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(out...)
}

// EmitEvent packs an ABI event and emits it from env.Self. Indexed arguments
// become topics after the event id, the rest is ABI-encoded into data.
func EmitEvent(env *Env, ev abi.Event, args ...interface{}) error {
	if len(args) != len(ev.Inputs) {
		return fmt.Errorf("event %s: expected %d args, got %d", ev.Name, len(ev.Inputs), len(args))
	}
	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		t, err := abi.MakeTopics([]interface{}{args[i]})
		if err != nil {
			return fmt.Errorf("event %s: topic %s: %w", ev.Name, in.Name, err)
		}
		topics = append(topics, t[0][0])
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return fmt.Errorf("event %s: %w", ev.Name, err)
	}
	return env.Emit(topics, packed)
}

// UnpackEvent decodes log into a name → value map. It fails when the log was
// not produced by ev.
func UnpackEvent(ev abi.Event, log Log) (map[string]interface{}, error) {
	if len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a %s event", ev.Name)
	}
	out := make(map[string]interface{}, len(ev.Inputs))
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(out, log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", ev.Name, err)
	}
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(out, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("unpack %s topics: %w", ev.Name, err)
	}
	return out, nil
}

// Selector reports whether input calls method m.
func Selector(m abi.Method, input []byte) bool {
	return len(input) >= 4 && bytes.Equal(input[:4], m.ID)
}
