package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client is an operator-side connection to the bot's admin MCP endpoint.
type Client struct {
	// Token is sent as a bearer token on Dial when set.
	Token string

	client  *sdk.Client
	session *sdk.ClientSession
}

func NewClient(name, version string) *Client {
	return &Client{client: sdk.NewClient(&sdk.Implementation{Name: name, Version: version}, nil)}
}

// Dial connects over websocket. http and https URLs are rewritten to ws and
// wss.
func (c *Client) Dial(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	var header http.Header
	if c.Token != "" {
		header = http.Header{"Authorization": {"Bearer " + c.Token}}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("mcp: dial %s: %w", u, err)
	}
	return c.Connect(ctx, NewWebSocketTransport(conn))
}

// Connect starts a session over an arbitrary transport.
func (c *Client) Connect(ctx context.Context, t sdk.Transport) error {
	sess, err := c.client.Connect(ctx, t, nil)
	if err != nil {
		return err
	}
	c.session = sess
	return nil
}

// Call invokes a tool and returns its structured output as JSON. Tool-level
// failures come back as errors.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	if c.session == nil {
		return nil, fmt.Errorf("mcp: not connected")
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return nil, err
	}
	if res.IsError {
		return nil, fmt.Errorf("mcp: %s: %s", tool, contentText(res))
	}
	if res.StructuredContent != nil {
		return json.Marshal(res.StructuredContent)
	}
	return json.RawMessage(contentText(res)), nil
}

func contentText(res *sdk.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
