package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/interiorlens/api"
	"github.com/BaSui01/interiorlens/internal/metrics"
	"github.com/BaSui01/interiorlens/types"
)

// GatewayPath is the websocket endpoint.
const GatewayPath = "/ws"

// ErrNoRoute is returned by Reply when no connection has spoken for a chat.
var ErrNoRoute = errors.New("no gateway connection for chat")

// Submitter accepts items from the gateway. *Pipeline implements it.
type Submitter interface {
	Submit(item types.Item) error
}

// GatewayConfig configures the gateway.
type GatewayConfig struct {
	// MaxFrameBytes limits one inbound frame, base64 payload included.
	MaxFrameBytes int64
	// WriteTimeout bounds one outbound frame.
	WriteTimeout time.Duration
	// OriginPatterns are extra allowed origins for browser clients.
	OriginPatterns []string
}

// DefaultGatewayConfig returns the default gateway settings.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxFrameBytes: 16 << 20,
		WriteTimeout:  10 * time.Second,
	}
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithGatewayMetrics sets the metrics collector.
func WithGatewayMetrics(m *metrics.Collector) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// gatewayConn is one adapter connection. Writes are serialized.
type gatewayConn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (c *gatewayConn) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *gatewayConn) close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close(code, reason)
}

// Gateway bridges chat transport adapters and the pipeline over websocket.
// It implements Replier: replies go to the connection that last sent an
// item for the chat.
type Gateway struct {
	cfg     GatewayConfig
	logger  *zap.Logger
	metrics *metrics.Collector

	mu        sync.RWMutex
	submitter Submitter
	routes    map[int64]*gatewayConn
	conns     map[*gatewayConn]struct{}
}

// NewGateway creates a gateway. Bind must be called before serving.
func NewGateway(cfg GatewayConfig, opts ...GatewayOption) *Gateway {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultGatewayConfig().WriteTimeout
	}
	g := &Gateway{
		cfg:    cfg,
		logger: zap.NewNop(),
		routes: make(map[int64]*gatewayConn),
		conns:  make(map[*gatewayConn]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("component", "gateway"))
	return g
}

// Bind sets the destination of inbound items.
func (g *Gateway) Bind(s Submitter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitter = s
}

// Connections returns the number of open connections.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// ServeHTTP upgrades the request and reads inbound frames until the peer
// disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	submitter := g.submitter
	g.mu.RUnlock()
	if submitter == nil {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.OriginPatterns,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	if g.cfg.MaxFrameBytes > 0 {
		ws.SetReadLimit(g.cfg.MaxFrameBytes)
	}

	conn := &gatewayConn{ws: ws}
	g.register(conn)
	defer g.unregister(conn)

	g.logger.Info("adapter connected", zap.String("remote", r.RemoteAddr))
	status, reason := g.readLoop(r.Context(), conn, submitter)
	conn.close(status, reason)
	g.logger.Info("adapter disconnected", zap.String("remote", r.RemoteAddr), zap.String("reason", reason))
}

func (g *Gateway) readLoop(ctx context.Context, conn *gatewayConn, submitter Submitter) (websocket.StatusCode, string) {
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return websocket.StatusNormalClosure, "bye"
			case websocket.StatusMessageTooBig:
				return websocket.StatusMessageTooBig, "frame too large"
			}
			if ctx.Err() != nil {
				return websocket.StatusGoingAway, "server shutting down"
			}
			g.logger.Debug("websocket read ended", zap.Error(err))
			return websocket.StatusInternalError, "read failed"
		}

		var frame api.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.metrics.RecordGatewayFrame("in", "invalid")
			g.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if frame.ChatID == 0 {
			g.metrics.RecordGatewayFrame("in", "invalid")
			g.logger.Warn("dropping frame without chat id", zap.Int64("message_id", frame.MessageID))
			continue
		}

		g.route(frame.ChatID, conn)

		item := types.Item{
			Payload:   frame.Data,
			Name:      frame.FileName,
			MIMEType:  frame.MIMEType,
			GroupID:   frame.MediaGroupID,
			Seq:       frame.MessageID,
			ChatID:    frame.ChatID,
			ArrivedAt: time.Now(),
		}
		if err := submitter.Submit(item); err != nil {
			g.metrics.RecordGatewayFrame("in", "rejected")
			g.logger.Warn("pipeline rejected item", zap.Int64("chat_id", frame.ChatID), zap.Error(err))
			return websocket.StatusTryAgainLater, "pipeline closed"
		}
		g.metrics.RecordGatewayFrame("in", "ok")
	}
}

// Reply implements Replier.
func (g *Gateway) Reply(ctx context.Context, chatID, replyTo int64, text string) error {
	g.mu.RLock()
	conn := g.routes[chatID]
	g.mu.RUnlock()
	if conn == nil {
		g.metrics.RecordGatewayFrame("out", "no_route")
		return fmt.Errorf("%w %d", ErrNoRoute, chatID)
	}

	data, err := json.Marshal(api.OutboundFrame{ChatID: chatID, ReplyToMessageID: replyTo, Text: text})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()
	if err := conn.write(wctx, data); err != nil {
		g.metrics.RecordGatewayFrame("out", "error")
		return fmt.Errorf("write reply: %w", err)
	}
	g.metrics.RecordGatewayFrame("out", "ok")
	return nil
}

// Close disconnects every adapter.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := make([]*gatewayConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (g *Gateway) register(c *gatewayConn) {
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
	g.metrics.AddGatewayConnections(1)
}

func (g *Gateway) unregister(c *gatewayConn) {
	g.mu.Lock()
	delete(g.conns, c)
	for chat, owner := range g.routes {
		if owner == c {
			delete(g.routes, chat)
		}
	}
	g.mu.Unlock()
	g.metrics.AddGatewayConnections(-1)
}

func (g *Gateway) route(chatID int64, c *gatewayConn) {
	g.mu.Lock()
	g.routes[chatID] = c
	g.mu.Unlock()
}
