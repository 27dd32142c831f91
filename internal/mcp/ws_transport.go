package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// closeGrace bounds the close handshake sent before the socket is dropped.
const closeGrace = time.Second

// NewWebSocketTransport frames JSON-RPC over ws, one message per text frame.
// The bot and voicectl both use it.
func NewWebSocketTransport(ws *websocket.Conn) sdk.Transport {
	return frameTransport{ws: ws}
}

type frameTransport struct{ ws *websocket.Conn }

func (t frameTransport) Connect(context.Context) (sdk.Connection, error) {
	return &frameConn{ws: t.ws}, nil
}

// frameConn is one live admin socket. The SDK reads from a single loop but
// may write from several goroutines, so writes take mu.
type frameConn struct {
	ws *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Read waits for the next text frame. A ctx deadline becomes the socket read
// deadline; anything but text is a protocol error.
func (c *frameConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
		defer func() { _ = c.ws.SetReadDeadline(time.Time{}) }()
	}
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, fmt.Errorf("mcp: unexpected websocket frame type %d", kind)
	}
	return jsonrpc.DecodeMessage(data)
}

func (c *frameConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encode: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(dl)
		defer func() { _ = c.ws.SetWriteDeadline(time.Time{}) }()
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close says goodbye with a normal close frame, then drops the socket.
// Repeated calls return the first result.
func (c *frameConn) Close() error {
	c.closeOnce.Do(func() {
		bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, bye, time.Now().Add(closeGrace))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// SessionID is empty; the admin socket carries exactly one session.
func (c *frameConn) SessionID() string { return "" }
