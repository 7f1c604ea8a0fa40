package controller

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	apitypes "github.com/canopy-network/tokenbound/app/devnet/controller/types"
	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// liveFeed is the hub subscription of one websocket client. A client starts
// unsubscribed; the first subscribe attaches it to the hub and later ones
// replace the filter.
type liveFeed struct {
	mu  sync.Mutex
	hub *events.Hub
	sub *events.Subscription
	wg  sync.WaitGroup
}

func (f *liveFeed) subscribe(ctx context.Context, filter events.Filter, send chan<- apitypes.ServerMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		f.sub.SetFilter(filter)
		return
	}
	f.sub = f.hub.Subscribe(filter)
	f.wg.Add(1)
	go func(sub *events.Subscription) {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case send <- apitypes.ServerMessage{Type: "event", Payload: rec}:
				case <-ctx.Done():
					return
				}
			}
		}
	}(f.sub)
}

func (f *liveFeed) unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		f.sub.Close()
		f.sub = nil
	}
}

// close detaches from the hub and waits for the forwarder to stop writing.
func (f *liveFeed) close() {
	f.unsubscribe()
	f.wg.Wait()
}

// HandleWebSocket upgrades the connection and streams ledger events.
//
// Protocol:
// Client sends: {"action": "subscribe"}                                    // everything
// Client sends: {"action": "subscribe", "addresses": ["0x..."], "types": ["AccountCreated"]}
// Client sends: {"action": "unsubscribe"}
//
// Server sends:
// - {"type": "event", "payload": {...record...}}
// - {"type": "subscribed", "payload": {"addresses": [...], "types": [...]}}
// - {"type": "unsubscribed", "payload": {}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed := &liveFeed{hub: c.App.Hub}
	send := make(chan apitypes.ServerMessage, 256)

	var pinger, writer sync.WaitGroup
	c.guarded(&pinger, "ping ticker", r, cancel, func() { c.sendPings(ctx, conn) })
	c.guarded(&writer, "message writer", r, cancel, func() { c.writeMessages(ctx, conn, send) })

	// Blocks until the connection closes
	c.readClientMessages(ctx, conn, cancel, feed, send)

	cancel()
	feed.close()
	pinger.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// guarded runs fn on its own goroutine. A panic is logged and tears the
// connection down instead of the process.
func (c *Controller) guarded(wg *sync.WaitGroup, name string, r *http.Request, cancel context.CancelFunc, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in websocket goroutine",
					zap.String("goroutine", name),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", r.RemoteAddr))
				cancel()
			}
		}()
		fn()
	}()
}

// sendPings sends periodic ping frames; the client's pongs reset the read
// deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages drains send until it is closed. After a write error it keeps
// draining so producers never block.
func (c *Controller) writeMessages(ctx context.Context, conn *websocket.Conn, send <-chan apitypes.ServerMessage) {
	broken := false
	for msg := range send {
		if broken {
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			if ctx.Err() == nil {
				c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			}
			broken = true
		}
	}
}

func push(ctx context.Context, send chan<- apitypes.ServerMessage, msg apitypes.ServerMessage) {
	select {
	case send <- msg:
	case <-ctx.Done():
	}
}

// readClientMessages handles filter changes and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, feed *liveFeed, send chan<- apitypes.ServerMessage) {
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		var msg apitypes.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
			return
		}

		switch msg.Action {
		case "subscribe":
			filter := events.Filter{Addresses: msg.Addresses, Types: msg.Types}
			feed.subscribe(ctx, filter, send)
			c.App.Logger.Debug("Client subscribed",
				zap.Int("addresses", len(filter.Addresses)),
				zap.Strings("types", filter.Types))
			push(ctx, send, apitypes.ServerMessage{Type: "subscribed", Payload: filter})
		case "unsubscribe":
			feed.unsubscribe()
			push(ctx, send, apitypes.ServerMessage{Type: "unsubscribed", Payload: map[string]string{}})
		default:
			push(ctx, send, apitypes.ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}})
		}
	}
}
