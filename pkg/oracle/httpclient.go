package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-network/tokenbound/pkg/utils"
)

var ErrNoEndpoints = errors.New("no endpoints available")

// maxResponseSize caps JSON-RPC response bodies.
const maxResponseSize = 4 << 20

// RPCError is an error object returned by a JSON-RPC node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Opts configures an HTTPClient. Zero values pick the defaults noted.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration // per request, 15s
	RPS             int           // sustained request rate, 20
	Burst           int           // bucket size, 40
	BreakerFailures int           // consecutive failures that open a breaker, 3
	BreakerCooldown time.Duration // how long an open breaker skips its endpoint, 5s
	HTTPClient      *http.Client
}

// bucket is a token bucket refilled continuously at rate tokens per second.
type bucket struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64
	last   time.Time
}

func newBucket(rps, burst int) *bucket {
	return &bucket{tokens: float64(burst), burst: float64(burst), rate: float64(rps), last: time.Now()}
}

// take consumes a token if one is available, and otherwise returns how long
// until the next one.
func (b *bucket) take(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = min(b.burst, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

func (b *bucket) wait(ctx context.Context) error {
	for {
		d := b.take(time.Now())
		if d == 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// breaker tracks consecutive failures per endpoint. An endpoint that reaches
// the threshold is skipped until its cooldown passes.
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  map[string]int
	openUntil map[string]time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		failures:  make(map[string]int),
		openUntil: make(map[string]time.Time),
	}
}

func (b *breaker) open(ep string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, tripped := b.openUntil[ep]
	if !tripped {
		return false
	}
	if now.Before(until) {
		return true
	}
	// half-open: let the next request through with a clean count
	delete(b.openUntil, ep)
	b.failures[ep] = 0
	return false
}

func (b *breaker) fail(ep string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[ep]++
	if b.failures[ep] >= b.threshold {
		b.openUntil[ep] = now.Add(b.cooldown)
	}
}

func (b *breaker) succeed(ep string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, ep)
}

// HTTPClient is a JSON-RPC client over a set of equivalent node endpoints,
// rate limited by one shared bucket and guarded by a breaker per endpoint.
type HTTPClient struct {
	endpoints []string
	http      *http.Client
	nextID    atomic.Uint64
	limit     *bucket
	breaker   *breaker
}

func NewHTTPClient(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		hc.Timeout = o.Timeout
	}
	return &HTTPClient{
		endpoints: utils.Dedup(o.Endpoints),
		http:      hc,
		limit:     newBucket(o.RPS, o.Burst),
		breaker:   newBreaker(o.BreakerFailures, o.BreakerCooldown),
	}
}

// errEndpoint marks a failure that counts against the endpoint's breaker.
type errEndpoint struct{ err error }

func (e errEndpoint) Error() string { return e.err.Error() }
func (e errEndpoint) Unwrap() error { return e.err }

// post sends payload to ep and returns the raw response body.
func (c *HTTPClient) post(ctx context.Context, ep string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errEndpoint{err}
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	switch {
	case resp.StatusCode >= 500:
		return nil, errEndpoint{fmt.Errorf("%s: server %d", ep, resp.StatusCode)}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s: http %d", ep, resp.StatusCode)
	}
	body, err := utils.ReadCapped(resp.Body, maxResponseSize)
	if err != nil {
		return nil, errEndpoint{fmt.Errorf("%s: %w", ep, err)}
	}
	return body, nil
}

// Call invokes a JSON-RPC method and decodes the result into out. Transport
// failures and bad responses move on to the next endpoint; a JSON-RPC error
// object is the node's answer and is returned as *RPCError without failover.
func (c *HTTPClient) Call(ctx context.Context, method string, params []any, out any) error {
	if len(c.endpoints) == 0 {
		return ErrNoEndpoints
	}
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}

	lastErr := ErrNoEndpoints
	for _, ep := range c.endpoints {
		if c.breaker.open(ep, time.Now()) {
			continue
		}
		if err := c.limit.wait(ctx); err != nil {
			return err
		}

		body, err := c.post(ctx, ep, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var epErr errEndpoint
			if errors.As(err, &epErr) {
				c.breaker.fail(ep, time.Now())
			}
			lastErr = err
			continue
		}

		var rr rpcResponse
		if err := json.Unmarshal(body, &rr); err != nil {
			lastErr = fmt.Errorf("%s: decode response: %w", ep, err)
			continue
		}
		c.breaker.succeed(ep)
		if rr.Error != nil {
			return rr.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
	return lastErr
}
