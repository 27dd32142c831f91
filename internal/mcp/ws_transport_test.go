package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// socketPair returns the server side of a websocket wrapped as an MCP
// connection together with a raw client socket.
func socketPair(t *testing.T) (*frameConn, *websocket.Conn) {
	t.Helper()
	got := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		got <- ws
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	conn, err := NewWebSocketTransport(<-got).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fc := conn.(*frameConn)
	t.Cleanup(func() { fc.Close() })
	return fc, client
}

func TestFrameConnDecodesTextFrames(t *testing.T) {
	fc, client := socketPair(t)
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	msg, err := fc.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok || req.Method != "ping" {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestFrameConnRejectsBinaryFrames(t *testing.T) {
	fc, client := socketPair(t)
	if err := client.WriteMessage(websocket.BinaryMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := fc.Read(context.Background()); err == nil || !strings.Contains(err.Error(), "frame type") {
		t.Fatalf("expected frame type error, got %v", err)
	}
}

func TestFrameConnReadHonoursDeadline(t *testing.T) {
	fc, _ := socketPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := fc.Read(ctx); err == nil {
		t.Fatalf("Read should time out on a silent socket")
	}
	if waited := time.Since(start); waited > 2*time.Second {
		t.Fatalf("Read ignored the deadline, waited %v", waited)
	}
}

func TestFrameConnCloseIsIdempotent(t *testing.T) {
	fc, client := socketPair(t)
	first := fc.Close()
	if second := fc.Close(); second != first {
		t.Fatalf("second Close = %v, first = %v", second, first)
	}
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("client should see a normal close, got %v", err)
	}
}
