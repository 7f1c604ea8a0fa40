package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/canopy-network/tokenbound/pkg/retry"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Reader is the part of Client a Tail needs.
type Reader interface {
	XRead(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XStream, error)
	XReadGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]redis.XStream, error)
	XAck(ctx context.Context, stream, group string, ids ...string) (int64, error)
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) error
}

// TailConfig selects what a Tail follows. With a Group, entries are shared
// between the group's consumers and acknowledged once handled; without one,
// the tail reads the whole stream from From on.
type TailConfig struct {
	Stream   string
	Group    string
	Consumer string

	// From is "$" (new entries only, the default), "0" or an entry id.
	From string

	Batch int64         // entries per read, default 100
	Block time.Duration // read wait, default 5s

	// Backoff paces retries after failed reads. Attempts is ignored: a
	// tail retries until its context ends.
	Backoff retry.Config

	Logger *zap.Logger
}

func (c TailConfig) withDefaults() TailConfig {
	if c.From == "" {
		c.From = "$"
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff = retry.Config{Initial: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: 0.15}
	}
	c.Backoff.Max = max(c.Backoff.Max, c.Backoff.Initial)
	c.Backoff.Factor = max(c.Backoff.Factor, 1)
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Handler is called once per entry. In group mode a nil error acknowledges
// the entry; a failed entry stays pending.
type Handler func(ctx context.Context, msg Message) error

// Message is one stream entry as written by Publisher.
type Message struct {
	ID     string
	Stream string
	Values map[string]any
}

// Tail follows an event stream and survives Redis outages.
type Tail struct {
	r   Reader
	cfg TailConfig
}

func NewTail(r Reader, cfg TailConfig) (*Tail, error) {
	switch {
	case r == nil:
		return nil, errors.New("redis reader is required")
	case cfg.Stream == "":
		return nil, errors.New("stream name is required")
	case cfg.Group != "" && cfg.Consumer == "":
		return nil, errors.New("consumer name is required with a group")
	}
	return &Tail{r: r, cfg: cfg.withDefaults()}, nil
}

// Run feeds entries to h until ctx ends, and returns ctx's error.
func (t *Tail) Run(ctx context.Context, h Handler) error {
	log := t.cfg.Logger.With(zap.String("stream", t.cfg.Stream))
	if t.cfg.Group != "" {
		if err := t.r.XGroupCreateMkStream(ctx, t.cfg.Stream, t.cfg.Group, "$"); err != nil {
			return fmt.Errorf("create consumer group: %w", err)
		}
		log = log.With(zap.String("group", t.cfg.Group), zap.String("consumer", t.cfg.Consumer))
		log.Info("Joined consumer group")
	}

	cursor := t.cfg.From
	failures := 0
	for ctx.Err() == nil {
		batch, err := t.read(ctx, cursor)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, redis.Nil):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			failures++
			wait := retry.Backoff(t.cfg.Backoff, failures)
			log.Warn("Stream read failed",
				zap.Int("failures", failures),
				zap.Duration("retryIn", wait),
				zap.Error(err))
			if err := retry.Sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		for _, msg := range batch {
			if t.cfg.Group == "" {
				cursor = msg.ID
			}
			if err := h(ctx, msg); err != nil {
				log.Error("Handler failed", zap.String("id", msg.ID), zap.Error(err))
				continue
			}
			if t.cfg.Group == "" {
				continue
			}
			if _, err := t.r.XAck(ctx, t.cfg.Stream, t.cfg.Group, msg.ID); err != nil {
				log.Warn("Ack failed", zap.String("id", msg.ID), zap.Error(err))
			}
		}
	}
	log.Info("Tail stopped")
	return ctx.Err()
}

func (t *Tail) read(ctx context.Context, cursor string) ([]Message, error) {
	var (
		res []redis.XStream
		err error
	)
	if t.cfg.Group == "" {
		res, err = t.r.XRead(ctx, t.cfg.Stream, cursor, t.cfg.Batch, t.cfg.Block)
	} else {
		res, err = t.r.XReadGroup(ctx, t.cfg.Group, t.cfg.Consumer, t.cfg.Stream, t.cfg.Batch, t.cfg.Block)
	}
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, s := range res {
		for _, e := range s.Messages {
			out = append(out, Message{ID: e.ID, Stream: s.Stream, Values: e.Values})
		}
	}
	return out, nil
}

// Data returns the "data" field, or nil.
func (m Message) Data() []byte {
	switch data := m.Values["data"].(type) {
	case string:
		return []byte(data)
	case []byte:
		return data
	}
	return nil
}

// Height returns the "height" field, or 0.
func (m Message) Height() uint64 {
	s, _ := m.Values["height"].(string)
	h, _ := strconv.ParseUint(s, 10, 64)
	return h
}

// Record decodes the event carried by the message.
func (m Message) Record() (events.Record, error) {
	data := m.Data()
	if data == nil {
		return events.Record{}, fmt.Errorf("message %s has no data field", m.ID)
	}
	var r events.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return events.Record{}, fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return r, nil
}
