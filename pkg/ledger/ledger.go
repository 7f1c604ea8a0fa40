package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Message is a transaction or read request submitted by an external caller.
type Message struct {
	From  common.Address
	To    common.Address
	Value *uint256.Int
	Data  []byte
}

// Receipt describes a committed transaction.
type Receipt struct {
	Height uint64         `json:"height"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Return []byte         `json:"return"`
	Logs   []Log          `json:"logs"`
}

// Ledger is the single authoritative, strictly ordered store every operation
// goes through. One mutex linearizes all reads and writes, so an operation
// always observes every operation ordered before it and none after it.
type Ledger struct {
	mu      sync.Mutex
	chainID uint256.Int
	height  uint64
	st      *state
	sinks   []LogSink
	logger  *zap.Logger
}

// New creates an empty ledger for the given chain id.
func New(logger *zap.Logger, chainID uint64) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		st:     newState(),
		logger: logger,
	}
	l.chainID.SetUint64(chainID)
	return l
}

// AddSink registers a receiver for committed logs.
func (l *Ledger) AddSink(s LogSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

func (l *Ledger) ChainID() *uint256.Int {
	return new(uint256.Int).Set(&l.chainID)
}

// Height is the number of committed transactions.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

func (l *Ledger) BalanceOf(addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.balance(addr)
}

func (l *Ledger) NonceOf(addr common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.nonce(addr)
}

func (l *Ledger) CodeAt(addr common.Address) Contract {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.code(addr)
}

func (l *Ledger) HasCode(addr common.Address) bool {
	return l.CodeAt(addr) != nil
}

func (l *Ledger) StorageAt(addr common.Address, key common.Hash) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.getState(addr, key)
}

// Exec runs fn in a root frame whose Self is from. It is the privileged,
// Go-level entry point the other operations are built on: whatever fn does is
// committed when it returns nil and rolled back entirely otherwise.
func (l *Ledger) Exec(ctx context.Context, from common.Address, fn func(env *Env) ([]byte, error)) (*Receipt, error) {
	return l.exec(ctx, from, common.Address{}, false, fn)
}

// Transact submits a state-changing call from an external account.
func (l *Ledger) Transact(ctx context.Context, msg Message) (*Receipt, error) {
	return l.exec(ctx, msg.From, msg.To, false, func(env *Env) ([]byte, error) {
		return env.Call(msg.To, msg.Value, msg.Data)
	})
}

// View runs a read-only call. Nothing it does is ever committed.
func (l *Ledger) View(ctx context.Context, msg Message) (ret []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAdmitted, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	root := l.rootEnv(msg.From, true)
	snap := l.st.snapshot()
	defer func() {
		l.st.revertTo(snap)
		if p := recover(); p != nil {
			ret, err = nil, l.panicked(p, msg.From, msg.To)
		}
	}()
	return root.StaticCall(msg.To, msg.Data)
}

// Deploy installs c at the address derived from from's nonce.
func (l *Ledger) Deploy(ctx context.Context, from common.Address, c Contract) (common.Address, error) {
	var addr common.Address
	_, err := l.Exec(ctx, from, func(env *Env) ([]byte, error) {
		var err error
		addr, err = env.Create(c, nil)
		return nil, err
	})
	if err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// Credit mints native currency to addr. Used for genesis allocations and the
// devnet faucet.
func (l *Ledger) Credit(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	_, err := l.Exec(ctx, addr, func(env *Env) ([]byte, error) {
		sum, overflow := new(uint256.Int).AddOverflow(env.st.balance(addr), amount)
		if overflow {
			return nil, ErrBalanceOverflow
		}
		env.st.setBalance(addr, sum)
		return nil, nil
	})
	return err
}

// Install places c at a fixed address outside of any transaction. Meant for
// genesis contracts such as the canonical registry.
func (l *Ledger) Install(addr common.Address, c Contract) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.code(addr) != nil {
		return fmt.Errorf("%w at %s", ErrContractCollision, addr.Hex())
	}
	l.st.setNonce(addr, 1)
	l.st.setCode(addr, c)
	l.st.commit()
	l.logger.Info("Installed genesis contract", zap.String("address", addr.Hex()))
	return nil
}

func (l *Ledger) rootEnv(from common.Address, static bool) *Env {
	return &Env{
		ledger:   l,
		st:       l.st,
		self:     from,
		codeAddr: from,
		caller:   from,
		origin:   from,
		value:    new(uint256.Int),
		static:   static,
	}
}

// panicked turns a recovered contract panic into an error. The caller has
// already rolled the state back.
func (l *Ledger) panicked(p any, from, to common.Address) error {
	l.logger.Error("Contract panicked",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.Any("panic", p))
	return fmt.Errorf("%w: %v", ErrContractPanic, p)
}

func (l *Ledger) exec(ctx context.Context, from, to common.Address, static bool, fn func(env *Env) ([]byte, error)) (rcpt *Receipt, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAdmitted, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			l.st.revertTo(0)
			l.st.commit()
			rcpt, err = nil, l.panicked(p, from, to)
		}
	}()

	ret, err := fn(l.rootEnv(from, static))
	if err != nil {
		l.st.revertTo(0)
		l.st.commit()
		l.logger.Debug("Transaction reverted",
			zap.String("from", from.Hex()),
			zap.String("to", to.Hex()),
			zap.Error(err))
		return nil, err
	}

	l.height++
	logs := l.st.commit()
	for i := range logs {
		logs[i].Height = l.height
		logs[i].Index = uint(i)
	}
	if len(logs) > 0 {
		for _, s := range l.sinks {
			s.Publish(logs)
		}
	}

	return &Receipt{
		Height: l.height,
		From:   from,
		To:     to,
		Return: ret,
		Logs:   logs,
	}, nil
}
