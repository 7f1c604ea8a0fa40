package events

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Filter selects records. Empty fields match everything.
type Filter struct {
	Addresses []common.Address `json:"addresses,omitempty"`
	Types     []string         `json:"types,omitempty"`
}

func (f Filter) Match(r Record) bool {
	if len(f.Addresses) > 0 && !slices.Contains(f.Addresses, r.Address) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, r.Type) {
		return false
	}
	return true
}

// Subscription receives matching records on C until Close.
type Subscription struct {
	C <-chan Record

	id     uint64
	hub    *Hub
	ch     chan Record
	mu     sync.RWMutex
	filter Filter
	closed bool
}

// SetFilter replaces the filter of a live subscription.
func (s *Subscription) SetFilter(f Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// Close detaches the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.hub.subs.Delete(s.id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) offer(r Record) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || !s.filter.Match(r) {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// Hub is a ledger.LogSink that fans decoded records out to subscribers. It
// never blocks the ledger: a subscriber whose queue is full misses records.
type Hub struct {
	logger  *zap.Logger
	decoder *Decoder
	buffer  int
	subs    *xsync.Map[uint64, *Subscription]
	nextID  atomic.Uint64
	dropped atomic.Uint64
	forward []func([]Record)
}

func NewHub(logger *zap.Logger, decoder *Decoder, buffer int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if decoder == nil {
		decoder = DefaultDecoder()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		logger:  logger,
		decoder: decoder,
		buffer:  buffer,
		subs:    xsync.NewMap[uint64, *Subscription](),
	}
}

// Forward registers fn to receive every decoded batch. Not safe to call while
// transactions are being committed.
func (h *Hub) Forward(fn func([]Record)) {
	h.forward = append(h.forward, fn)
}

func (h *Hub) Subscribe(f Filter) *Subscription {
	ch := make(chan Record, h.buffer)
	s := &Subscription{C: ch, ch: ch, id: h.nextID.Add(1), hub: h, filter: f}
	h.subs.Store(s.id, s)
	return s
}

// Decoder returns the decoder records are built with.
func (h *Hub) Decoder() *Decoder {
	return h.decoder
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	return h.subs.Size()
}

// Dropped returns how many deliveries were skipped because of full queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish implements ledger.LogSink.
func (h *Hub) Publish(logs []ledger.Log) {
	records := h.decoder.DecodeAll(logs)
	for _, fn := range h.forward {
		fn(records)
	}
	h.subs.Range(func(id uint64, s *Subscription) bool {
		for _, r := range records {
			if !s.offer(r) {
				h.dropped.Add(1)
				h.logger.Debug("Dropped event for slow subscriber",
					zap.Uint64("subscriber", id),
					zap.String("type", r.Type),
					zap.Uint64("height", r.Height))
			}
		}
		return true
	})
}
