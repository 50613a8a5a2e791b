// File: internal/mcp/websocket.go
package mcp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/engine"
	"github.com/xkilldash9x/browsergate/internal/observability"
)

// Constants for WebSocket timeouts and limits (based on Gorilla WebSocket examples).
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = maxCallBodyBytes
	// Send buffer size
	sendChannelSize = 64
)

// The zero CheckOrigin rejects cross-origin handshakes.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsClient is one WebSocket connection. Calls are queued per session and
// each queue is drained by one goroutine, so sessions run concurrently while
// calls within a session keep their arrival order.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	logger *zap.Logger
	send   chan wsResponse
	calls  sync.WaitGroup

	mu sync.Mutex
	// queues holds pending calls per session. A key is present while a
	// drain goroutine owns that session.
	queues map[string][]wsRequest
}

func (s *Server) handleToolSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.socketClients.Add(1)
		defer s.socketClients.Done()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("Failed to upgrade connection to WebSocket", zap.Error(err))
			return
		}

		c := &wsClient{
			server: s,
			conn:   conn,
			logger: s.logger.With(zap.String("remote_addr", r.RemoteAddr)),
			send:   make(chan wsResponse, sendChannelSize),
			queues: make(map[string][]wsRequest),
		}
		c.logger.Info("WebSocket connection established.")

		ctx, cancel := context.WithCancel(s.sockets)
		defer cancel()
		// Unblock the read loop when the server shuts down.
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			c.writePump()
		}()

		c.readPump(ctx)

		c.calls.Wait()
		close(c.send)
		<-writerDone
		c.logger.Info("WebSocket connection closed.")
	}
}

// readPump decodes calls until the connection fails or ctx is done.
func (c *wsClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.logger.Warn("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(wsResponse{ToolResponse: schemas.ToolResponse{
				ErrorKind: schemas.ErrorKindInvalidArguments,
				Message:   "invalid message: " + err.Error(),
			}})
			continue
		}

		c.logger.Debug("Received tool call",
			zap.String("id", req.ID),
			zap.String(observability.FieldTool, req.Tool),
			zap.String(observability.FieldSession, req.SessionID))

		c.dispatch(ctx, req)
	}
}

// dispatch appends req to its session's queue and starts a drain goroutine
// when none owns the session.
func (c *wsClient) dispatch(ctx context.Context, req wsRequest) {
	key := req.SessionID
	if key == "" {
		key = engine.DefaultSessionID
	}

	c.mu.Lock()
	pending, running := c.queues[key]
	c.queues[key] = append(pending, req)
	c.mu.Unlock()
	if running {
		return
	}

	c.calls.Add(1)
	go c.drain(ctx, key)
}

// drain runs the session's queued calls one at a time until the queue is empty.
func (c *wsClient) drain(ctx context.Context, key string) {
	defer c.calls.Done()
	for {
		c.mu.Lock()
		pending := c.queues[key]
		if len(pending) == 0 {
			delete(c.queues, key)
			c.mu.Unlock()
			return
		}
		req := pending[0]
		c.queues[key] = pending[1:]
		c.mu.Unlock()

		resp := c.server.engine.Call(ctx, req.ToolCall)
		c.reply(wsResponse{ID: req.ID, ToolResponse: resp})
	}
}

// reply queues a response. It must not be called after send is closed.
func (c *wsClient) reply(resp wsResponse) {
	c.send <- resp
}

// writePump drains send and keeps the connection alive with pings. After a
// write failure it keeps draining so callers never block.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	broken := false
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				if !broken {
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				_ = c.conn.Close()
				return
			}
			if broken {
				continue
			}
			if err := c.write(msg); err != nil {
				c.logger.Warn("Error writing tool response to WebSocket", zap.Error(err))
				broken = true
				_ = c.conn.Close()
			}

		case <-ticker.C:
			if broken {
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				broken = true
				continue
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				broken = true
				_ = c.conn.Close()
			}
		}
	}
}

func (c *wsClient) write(msg wsResponse) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
