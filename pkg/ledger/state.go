package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type stateObject struct {
	balance uint256.Int
	nonce   uint64
	code    Contract
	storage map[common.Hash]common.Hash
}

// state is the world state of the ledger. Every mutation appends an undo
// entry to the journal so a frame can be rolled back to any snapshot.
type state struct {
	objects map[common.Address]*stateObject
	journal []func()
	logs    []Log
}

func newState() *state {
	return &state{objects: make(map[common.Address]*stateObject)}
}

func (s *state) snapshot() int {
	return len(s.journal)
}

func (s *state) revertTo(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

// commit forgets the journal and returns the logs collected since the last
// commit.
func (s *state) commit() []Log {
	logs := s.logs
	s.journal = nil
	s.logs = nil
	return logs
}

func (s *state) object(addr common.Address) *stateObject {
	obj, ok := s.objects[addr]
	if !ok {
		obj = &stateObject{storage: make(map[common.Hash]common.Hash)}
		s.objects[addr] = obj
		s.journal = append(s.journal, func() { delete(s.objects, addr) })
	}
	return obj
}

func (s *state) balance(addr common.Address) *uint256.Int {
	if obj, ok := s.objects[addr]; ok {
		return new(uint256.Int).Set(&obj.balance)
	}
	return new(uint256.Int)
}

func (s *state) setBalance(addr common.Address, v *uint256.Int) {
	obj := s.object(addr)
	prev := obj.balance
	s.journal = append(s.journal, func() { obj.balance = prev })
	obj.balance = *v
}

func (s *state) transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromBal := s.balance(from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	s.setBalance(from, new(uint256.Int).Sub(fromBal, amount))
	toBal := s.balance(to)
	sum, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	s.setBalance(to, sum)
	return nil
}

func (s *state) nonce(addr common.Address) uint64 {
	if obj, ok := s.objects[addr]; ok {
		return obj.nonce
	}
	return 0
}

func (s *state) setNonce(addr common.Address, n uint64) {
	obj := s.object(addr)
	prev := obj.nonce
	s.journal = append(s.journal, func() { obj.nonce = prev })
	obj.nonce = n
}

func (s *state) code(addr common.Address) Contract {
	if obj, ok := s.objects[addr]; ok {
		return obj.code
	}
	return nil
}

func (s *state) setCode(addr common.Address, c Contract) {
	obj := s.object(addr)
	prev := obj.code
	s.journal = append(s.journal, func() { obj.code = prev })
	obj.code = c
}

func (s *state) getState(addr common.Address, key common.Hash) common.Hash {
	if obj, ok := s.objects[addr]; ok {
		return obj.storage[key]
	}
	return common.Hash{}
}

// setState stores val under key. Zero values are deleted so untouched and
// cleared slots look the same.
func (s *state) setState(addr common.Address, key, val common.Hash) {
	obj := s.object(addr)
	prev, had := obj.storage[key]
	s.journal = append(s.journal, func() {
		if had {
			obj.storage[key] = prev
		} else {
			delete(obj.storage, key)
		}
	})
	if val == (common.Hash{}) {
		delete(obj.storage, key)
		return
	}
	obj.storage[key] = val
}

func (s *state) addLog(l Log) {
	n := len(s.logs)
	s.journal = append(s.journal, func() { s.logs = s.logs[:n] })
	s.logs = append(s.logs, l)
}
