package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/retry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memStream is an in-memory stand-in for the Redis calls the publisher and
// consumer make.
type memStream struct {
	mu        sync.Mutex
	entries   []redis.XMessage
	published []string
	acked     []string
	failReads int
	groups    int
}

func (m *memStream) XAdd(_ context.Context, stream string, values map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(m.entries)+1)
	m.entries = append(m.entries, redis.XMessage{ID: id, Values: values})
	return id
}

func (m *memStream) Publish(_ context.Context, _ string, message any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, message.(string))
}

func (m *memStream) after(lastID string) []redis.XMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []redis.XMessage
	seen := lastID == "0"
	for _, e := range m.entries {
		if seen {
			out = append(out, e)
		}
		if e.ID == lastID {
			seen = true
		}
	}
	return out
}

func (m *memStream) XRead(ctx context.Context, stream, lastID string, _ int64, block time.Duration) ([]redis.XStream, error) {
	m.mu.Lock()
	if m.failReads > 0 {
		m.failReads--
		m.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	m.mu.Unlock()
	msgs := m.after(lastID)
	if len(msgs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(block):
			return nil, redis.Nil
		}
	}
	return []redis.XStream{{Stream: stream, Messages: msgs}}, nil
}

func (m *memStream) XReadGroup(ctx context.Context, _, _, stream string, count int64, block time.Duration) ([]redis.XStream, error) {
	m.mu.Lock()
	last := "0"
	if len(m.acked) > 0 {
		last = m.acked[len(m.acked)-1]
	}
	m.mu.Unlock()
	return m.XRead(ctx, stream, last, count, block)
}

func (m *memStream) XAck(_ context.Context, _, _ string, ids ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, ids...)
	return int64(len(ids)), nil
}

func (m *memStream) XGroupCreateMkStream(context.Context, string, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups++
	return nil
}

func sampleRecords() []events.Record {
	dec := events.DefaultDecoder()
	return []events.Record{
		dec.Decode(ledger.Log{Address: common.HexToAddress("0x01"), Height: 4, Index: 0}),
		dec.Decode(ledger.Log{Address: common.HexToAddress("0x02"), Height: 4, Index: 1, Data: []byte{0xbe, 0xef}}),
	}
}

// TestPublisherRoundTrip publishes through the queue and reads the entries
// back with a plain consumer.
func TestPublisherRoundTrip(t *testing.T) {
	mem := &memStream{}
	pub := NewPublisher(mem, zaptest.NewLogger(t), 31337, 4)
	pub.Enqueue(sampleRecords())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Run(ctx)

	require.Len(t, mem.entries, 2)
	assert.Len(t, mem.published, 2)
	assert.Equal(t, "4", mem.entries[0].Values["height"])

	tail, err := NewTail(mem, TailConfig{
		Stream: StreamName(31337),
		From:   "0",
		Block:  10 * time.Millisecond,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	runCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	var got []events.Record
	err = tail.Run(runCtx, func(_ context.Context, msg Message) error {
		r, err := msg.Record()
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(4), msg.Height())
		got = append(got, r)
		if len(got) == 2 {
			stop()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 2)
	assert.Equal(t, common.HexToAddress("0x02"), got[1].Address)
	assert.Equal(t, []byte{0xbe, 0xef}, []byte(got[1].Data))
}

func TestPublisherDropsWhenFull(t *testing.T) {
	pub := NewPublisher(&memStream{}, zaptest.NewLogger(t), 1, 1)
	pub.Enqueue(sampleRecords())
	pub.Enqueue(sampleRecords())
	assert.Equal(t, uint64(2), pub.Dropped())
}

// TestTailGroupAcksAndRetries verifies read errors are retried and
// handled entries are acknowledged.
func TestTailGroupAcksAndRetries(t *testing.T) {
	mem := &memStream{failReads: 2}
	mem.XAdd(context.Background(), "s", map[string]any{"data": `{"type":"unknown"}`, "height": "1"})

	tail, err := NewTail(mem, TailConfig{
		Stream:   "s",
		Group:    "tail",
		Consumer: "c1",
		Block:    10 * time.Millisecond,
		Backoff:  retry.Config{Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2},
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = tail.Run(ctx, func(_ context.Context, msg Message) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mem.groups)
	assert.Equal(t, []string{"1-0"}, mem.acked)
}

func TestNewTailValidation(t *testing.T) {
	_, err := NewTail(nil, TailConfig{Stream: "s"})
	assert.Error(t, err)
	_, err = NewTail(&memStream{}, TailConfig{})
	assert.Error(t, err)
	_, err = NewTail(&memStream{}, TailConfig{Stream: "s", Group: "g"})
	assert.Error(t, err)

	tail, err := NewTail(&memStream{}, TailConfig{Stream: "s"})
	require.NoError(t, err)
	assert.Equal(t, "$", tail.cfg.From)
	assert.Equal(t, int64(100), tail.cfg.Batch)
	assert.Equal(t, time.Second, tail.cfg.Backoff.Initial)
}

func TestMessageRecordWithoutData(t *testing.T) {
	_, err := Message{ID: "1-0", Values: map[string]any{}}.Record()
	assert.Error(t, err)
	assert.Zero(t, Message{}.Height())
}
