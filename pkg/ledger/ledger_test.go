package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const counterABI = `[
  {"type":"function","name":"inc","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"incAndFail","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"get","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"deposit","inputs":[],"outputs":[],"stateMutability":"payable"},
  {"type":"function","name":"tryCall","inputs":[{"name":"target","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
  {"type":"function","name":"delegate","inputs":[{"name":"target","type":"address"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"event","name":"Bumped","inputs":[{"name":"by","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}],"anonymous":false}
]`

var (
	counterDef = ledger.MustParseABI(counterABI)
	errNope    = ledger.Revert("nope")
	slotCount  = ledger.SlotOf(0)
	slotTried  = ledger.SlotOf(1)
)

type counter struct {
	d *ledger.Dispatcher
}

func inc(env *ledger.Env) error {
	v := ledger.WordToUint(env.GetState(slotCount))
	v.AddUint64(v, 1)
	if err := env.SetState(slotCount, ledger.UintToWord(v)); err != nil {
		return err
	}
	return ledger.EmitEvent(env, counterDef.Events["Bumped"], env.Caller(), ledger.Big(v))
}

func newCounter() *counter {
	d := ledger.NewDispatcher(counterDef).
		Handle("inc", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			return nil, inc(env)
		}).
		Handle("incAndFail", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			if err := inc(env); err != nil {
				return nil, err
			}
			return nil, errNope
		}).
		Handle("get", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			return []interface{}{ledger.Big(ledger.WordToUint(env.GetState(slotCount)))}, nil
		}).
		Handle("deposit", func(env *ledger.Env, _ []interface{}) ([]interface{}, error) {
			return nil, nil
		}).
		Handle("tryCall", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			_, err := env.Call(args[0].(common.Address), nil, args[1].([]byte))
			if err := env.SetState(slotTried, common.BigToHash(big.NewInt(1))); err != nil {
				return nil, err
			}
			return []interface{}{err == nil}, nil
		}).
		Handle("delegate", func(env *ledger.Env, args []interface{}) ([]interface{}, error) {
			_, err := env.DelegateCall(args[0].(common.Address), args[1].([]byte))
			return nil, err
		})
	return &counter{d: d}
}

func (c *counter) Run(env *ledger.Env, input []byte) ([]byte, error) {
	return c.d.Run(env, input)
}

type failingCtor struct{ counter }

func (f *failingCtor) Construct(env *ledger.Env, _ []byte) error {
	if err := env.SetState(slotCount, common.BigToHash(big.NewInt(7))); err != nil {
		return err
	}
	return errNope
}

type recordingSink struct {
	logs []ledger.Log
}

func (r *recordingSink) Publish(logs []ledger.Log) {
	r.logs = append(r.logs, logs...)
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func pack(t *testing.T, method string, args ...interface{}) []byte {
	t.Helper()
	data, err := counterDef.Pack(method, args...)
	require.NoError(t, err)
	return data
}

func getCount(t *testing.T, l *ledger.Ledger, addr common.Address) uint64 {
	t.Helper()
	ret, err := l.View(context.Background(), ledger.Message{From: alice, To: addr, Data: pack(t, "get")})
	require.NoError(t, err)
	out, err := counterDef.Unpack("get", ret)
	require.NoError(t, err)
	return out[0].(*big.Int).Uint64()
}

func setup(t *testing.T) (*ledger.Ledger, common.Address) {
	t.Helper()
	l := ledger.New(zaptest.NewLogger(t), 31337)
	addr, err := l.Deploy(context.Background(), alice, newCounter())
	require.NoError(t, err)
	require.Equal(t, crypto.CreateAddress(alice, 0), addr)
	return l, addr
}

// TestTransactCommitsAndNotifiesSinks verifies a successful transaction
// advances the height and hands its logs to registered sinks.
func TestTransactCommitsAndNotifiesSinks(t *testing.T) {
	l, c := setup(t)
	sink := &recordingSink{}
	l.AddSink(sink)
	start := l.Height()

	rcpt, err := l.Transact(context.Background(), ledger.Message{From: bob, To: c, Data: pack(t, "inc")})
	require.NoError(t, err)
	assert.Equal(t, start+1, rcpt.Height)
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, c, rcpt.Logs[0].Address)
	assert.Equal(t, rcpt.Height, rcpt.Logs[0].Height)

	require.Len(t, sink.logs, 1)
	fields, err := ledger.UnpackEvent(counterDef.Events["Bumped"], sink.logs[0])
	require.NoError(t, err)
	assert.Equal(t, bob, fields["by"])
	assert.Equal(t, int64(1), fields["value"].(*big.Int).Int64())

	assert.Equal(t, uint64(1), getCount(t, l, c))
}

// TestRevertRollsBackEverything verifies that a failing transaction leaves no
// trace and that its error is the one the contract returned.
func TestRevertRollsBackEverything(t *testing.T) {
	l, c := setup(t)
	sink := &recordingSink{}
	l.AddSink(sink)
	start := l.Height()

	_, err := l.Transact(context.Background(), ledger.Message{From: bob, To: c, Data: pack(t, "incAndFail")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNope))
	reason, ok := ledger.RevertReason(err)
	assert.True(t, ok)
	assert.Equal(t, "nope", reason)

	assert.Equal(t, start, l.Height())
	assert.Empty(t, sink.logs)
	assert.Equal(t, uint64(0), getCount(t, l, c))
}

// TestFailedInnerCallOnlyRevertsItsFrame verifies that a caller which tolerates
// a failed call keeps its own writes while the callee's are undone.
func TestFailedInnerCallOnlyRevertsItsFrame(t *testing.T) {
	l, c := setup(t)
	outer, err := l.Deploy(context.Background(), alice, newCounter())
	require.NoError(t, err)

	rcpt, err := l.Transact(context.Background(), ledger.Message{
		From: bob,
		To:   outer,
		Data: pack(t, "tryCall", c, pack(t, "incAndFail")),
	})
	require.NoError(t, err)
	out, err := counterDef.Unpack("tryCall", rcpt.Return)
	require.NoError(t, err)
	assert.False(t, out[0].(bool))
	assert.Empty(t, rcpt.Logs)

	assert.Equal(t, uint64(0), getCount(t, l, c))
	assert.Equal(t, common.BigToHash(big.NewInt(1)), l.StorageAt(outer, slotTried))
}

// TestDelegateCallUsesCallerContext verifies delegated code reads and writes
// the delegating contract's storage and emits under its address.
func TestDelegateCallUsesCallerContext(t *testing.T) {
	l, c := setup(t)
	host, err := l.Deploy(context.Background(), alice, newCounter())
	require.NoError(t, err)

	rcpt, err := l.Transact(context.Background(), ledger.Message{
		From: bob,
		To:   host,
		Data: pack(t, "delegate", c, pack(t, "inc")),
	})
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, host, rcpt.Logs[0].Address)

	fields, err := ledger.UnpackEvent(counterDef.Events["Bumped"], rcpt.Logs[0])
	require.NoError(t, err)
	assert.Equal(t, bob, fields["by"], "delegated frame keeps the original caller")

	assert.Equal(t, uint64(1), getCount(t, l, host))
	assert.Equal(t, uint64(0), getCount(t, l, c))
}

// TestViewIsReadOnly verifies writes are rejected in static context.
func TestViewIsReadOnly(t *testing.T) {
	l, c := setup(t)
	_, err := l.View(context.Background(), ledger.Message{From: bob, To: c, Data: pack(t, "inc")})
	assert.ErrorIs(t, err, ledger.ErrWriteProtection)
	assert.Equal(t, uint64(0), getCount(t, l, c))
}

// panicky writes a slot and then panics.
type panicky struct{}

func (panicky) Run(env *ledger.Env, _ []byte) ([]byte, error) {
	_ = env.SetState(slotCount, common.BigToHash(big.NewInt(42)))
	panic("index out of range")
}

// TestContractPanicLeavesNoTrace verifies a panicking contract fails its
// transaction like a revert and its partial writes never reach committed state.
func TestContractPanicLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	l, c := setup(t)
	bad, err := l.Deploy(ctx, alice, panicky{})
	require.NoError(t, err)
	require.NoError(t, l.Credit(ctx, bob, uint256.NewInt(100)))
	start := l.Height()

	_, err = l.Transact(ctx, ledger.Message{From: bob, To: bad, Value: uint256.NewInt(5)})
	assert.ErrorIs(t, err, ledger.ErrContractPanic)
	assert.Equal(t, common.Hash{}, l.StorageAt(bad, slotCount))
	assert.Equal(t, uint64(100), l.BalanceOf(bob).Uint64())
	assert.Equal(t, start, l.Height())

	// a panic deep in the call tree undoes the outer frames too
	_, err = l.Transact(ctx, ledger.Message{From: bob, To: c, Data: pack(t, "tryCall", bad, []byte{})})
	assert.ErrorIs(t, err, ledger.ErrContractPanic)
	assert.Equal(t, common.Hash{}, l.StorageAt(c, slotTried))

	_, err = l.View(ctx, ledger.Message{From: bob, To: bad})
	assert.ErrorIs(t, err, ledger.ErrContractPanic)

	// the ledger stays usable and the next commit carries nothing stale
	_, err = l.Transact(ctx, ledger.Message{From: bob, To: c, Data: pack(t, "inc")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), getCount(t, l, c))
	assert.Equal(t, common.Hash{}, l.StorageAt(bad, slotCount))
	assert.Equal(t, uint64(100), l.BalanceOf(bob).Uint64())
}

// TestValueTransfers covers payable checks, plain transfers and balance
// accounting.
func TestValueTransfers(t *testing.T) {
	l, c := setup(t)
	ctx := context.Background()
	require.NoError(t, l.Credit(ctx, alice, uint256.NewInt(100)))

	tests := []struct {
		name    string
		to      common.Address
		value   uint64
		data    []byte
		wantErr error
	}{
		{name: "payable method", to: c, value: 10, data: pack(t, "deposit")},
		{name: "non-payable method", to: c, value: 10, data: pack(t, "inc"), wantErr: ledger.ErrNonPayable},
		{name: "contract without receive", to: c, value: 10, wantErr: ledger.ErrNoReceive},
		{name: "plain transfer to account", to: bob, value: 5},
		{name: "insufficient balance", to: bob, value: 1000, wantErr: ledger.ErrInsufficientBalance},
		{name: "unknown selector", to: c, data: []byte{1, 2, 3, 4}, wantErr: ledger.ErrUnknownMethod},
		{name: "short input", to: c, data: []byte{1, 2}, wantErr: ledger.ErrMalformedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Transact(ctx, ledger.Message{From: alice, To: tt.to, Value: uint256.NewInt(tt.value), Data: tt.data})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.Equal(t, uint64(85), l.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(10), l.BalanceOf(c).Uint64())
	assert.Equal(t, uint64(5), l.BalanceOf(bob).Uint64())
}

// TestCreate2 verifies salted deployment lands on the precomputed address and
// refuses to deploy twice.
func TestCreate2(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t), 1)
	ctx := context.Background()
	salt := common.HexToHash("0x2a")
	initCode := []byte("init code")
	want := crypto.CreateAddress2(alice, salt, crypto.Keccak256(initCode))

	var got common.Address
	_, err := l.Exec(ctx, alice, func(env *ledger.Env) ([]byte, error) {
		var err error
		got, err = env.Create2(salt, initCode, newCounter(), nil)
		return nil, err
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, l.HasCode(want))

	_, err = l.Exec(ctx, alice, func(env *ledger.Env) ([]byte, error) {
		_, err := env.Create2(salt, initCode, newCounter(), nil)
		return nil, err
	})
	assert.ErrorIs(t, err, ledger.ErrContractCollision)
}

// TestConstructorFailureReverts verifies a failing constructor leaves no code
// or storage behind.
func TestConstructorFailureReverts(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t), 1)
	_, err := l.Deploy(context.Background(), alice, &failingCtor{counter: *newCounter()})
	assert.ErrorIs(t, err, errNope)

	addr := crypto.CreateAddress(alice, 0)
	assert.False(t, l.HasCode(addr))
	assert.Equal(t, common.Hash{}, l.StorageAt(addr, slotCount))
	assert.Equal(t, uint64(0), l.NonceOf(alice))
}

// TestCancelledContextNotAdmitted verifies a context cancelled before
// submission is rejected without touching state.
func TestCancelledContextNotAdmitted(t *testing.T) {
	l, c := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Transact(ctx, ledger.Message{From: bob, To: c, Data: pack(t, "inc")})
	assert.ErrorIs(t, err, ledger.ErrNotAdmitted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), getCount(t, l, c))
}

// TestInstallRejectsOccupiedAddress verifies genesis installation cannot
// overwrite code.
func TestInstallRejectsOccupiedAddress(t *testing.T) {
	l := ledger.New(nil, 1)
	addr := common.HexToAddress("0x02101dfB77FDE026414827Fdc604ddAF224F0921")
	require.NoError(t, l.Install(addr, newCounter()))
	assert.ErrorIs(t, l.Install(addr, newCounter()), ledger.ErrContractCollision)
	assert.Equal(t, uint64(1), l.NonceOf(addr))
}

// TestEmitEventTopics verifies indexed arguments become topics.
func TestEmitEventTopics(t *testing.T) {
	l, c := setup(t)
	rcpt, err := l.Transact(context.Background(), ledger.Message{From: bob, To: c, Data: pack(t, "inc")})
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)

	ev := counterDef.Events["Bumped"]
	log := rcpt.Logs[0]
	require.Len(t, log.Topics, 2)
	assert.Equal(t, ev.ID, log.Topics[0])
	assert.Equal(t, ledger.AddressWord(bob), log.Topics[1])

	_, err = ledger.UnpackEvent(abi.Event{Name: "Other", ID: common.HexToHash("0x01")}, log)
	assert.Error(t, err)
}
