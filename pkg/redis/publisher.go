package redis

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

// Writer is the part of Client the publisher needs.
type Writer interface {
	XAdd(ctx context.Context, stream string, values map[string]any) string
	Publish(ctx context.Context, channel string, message any)
}

// Publisher mirrors decoded ledger events into a Redis stream and channel.
// Enqueue is non-blocking so it can sit behind events.Hub.Forward, which runs
// while the ledger is locked; Run does the network writes.
type Publisher struct {
	w       Writer
	logger  *zap.Logger
	stream  string
	channel string
	queue   chan []events.Record
	dropped atomic.Uint64
}

func NewPublisher(w Writer, logger *zap.Logger, chainID uint64, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{
		w:       w,
		logger:  logger,
		stream:  StreamName(chainID),
		channel: ChannelName(chainID),
		queue:   make(chan []events.Record, buffer),
	}
}

func (p *Publisher) Enqueue(records []events.Record) {
	select {
	case p.queue <- records:
	default:
		p.dropped.Add(uint64(len(records)))
		p.logger.Warn("Redis publish queue full, dropping events", zap.Int("count", len(records)))
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run writes queued batches until ctx is done, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case batch := <-p.queue:
			p.write(ctx, batch)
		case <-ctx.Done():
			p.flush()
			return
		}
	}
}

func (p *Publisher) flush() {
	for {
		select {
		case batch := <-p.queue:
			p.write(context.Background(), batch)
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, batch []events.Record) {
	for _, r := range batch {
		data, err := json.Marshal(r)
		if err != nil {
			p.logger.Error("Failed to encode event", zap.String("type", r.Type), zap.Error(err))
			continue
		}
		p.w.XAdd(ctx, p.stream, map[string]any{
			"type":   r.Type,
			"height": strconv.FormatUint(r.Height, 10),
			"data":   string(data),
		})
		p.w.Publish(ctx, p.channel, string(data))
	}
}
