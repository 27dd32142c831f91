// Package mcp exposes the live voice session to operators as MCP tools over
// a websocket.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/georgedobreff/discord-llm-bot/internal/logging"
	"github.com/georgedobreff/discord-llm-bot/internal/voice"
)

// Controller is the slice of the voice manager the tools drive.
type Controller interface {
	Status() (voice.Status, error)
	History(userID string) ([]voice.Entry, error)
	Say(text string) error
}

type SessionStatus struct {
	Active     bool     `json:"active"`
	SessionID  string   `json:"session_id"`
	GuildID    string   `json:"guild_id"`
	ChannelID  string   `json:"channel_id"`
	State      string   `json:"state"`
	QueueLen   int      `json:"queue_length"`
	IsPlaying  bool     `json:"is_playing"`
	Recording  []string `json:"recording"`
	Processing []string `json:"processing"`
}

type HistoryArgs struct {
	UserID string `json:"user_id" jsonschema:"Discord user id whose voice history to return"`
}

type HistoryEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
}

type HistoryResult struct {
	UserID  string         `json:"user_id"`
	Entries []HistoryEntry `json:"entries"`
}

type SayArgs struct {
	Text string `json:"text" jsonschema:"text to speak in the active voice channel"`
}

type SayResult struct {
	Queued bool `json:"queued"`
}

// NewServer builds the MCP server with the session tools registered.
func NewServer(ctrl Controller, version string) *sdk.Server {
	s := sdk.NewServer(&sdk.Implementation{Name: "discord-llm-bot", Version: version}, nil)

	sdk.AddTool(s, &sdk.Tool{
		Name:        "session_status",
		Description: "State of the active voice session: queue, playback and held speaker locks.",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, _ struct{}) (*sdk.CallToolResult, SessionStatus, error) {
		st, err := ctrl.Status()
		if errors.Is(err, voice.ErrNoSession) {
			return nil, SessionStatus{State: voice.StateIdle.String(), Recording: []string{}, Processing: []string{}}, nil
		}
		if err != nil {
			return nil, SessionStatus{}, err
		}
		return nil, SessionStatus{
			Active:     true,
			SessionID:  st.SessionID,
			GuildID:    st.GuildID,
			ChannelID:  st.ChannelID,
			State:      st.State.String(),
			QueueLen:   st.QueueLen,
			IsPlaying:  st.IsPlaying,
			Recording:  st.Recording,
			Processing: st.Processing,
		}, nil
	})

	sdk.AddTool(s, &sdk.Tool{
		Name:        "voice_history",
		Description: "Persisted voice conversation history for one user, oldest first.",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args HistoryArgs) (*sdk.CallToolResult, HistoryResult, error) {
		if args.UserID == "" {
			return nil, HistoryResult{}, errors.New("user_id is required")
		}
		entries, err := ctrl.History(args.UserID)
		if err != nil {
			return nil, HistoryResult{}, err
		}
		out := HistoryResult{UserID: args.UserID, Entries: make([]HistoryEntry, 0, len(entries))}
		for _, e := range entries {
			out.Entries = append(out.Entries, HistoryEntry{UserID: e.UserID, DisplayName: e.DisplayName, Text: e.Text})
		}
		return nil, out, nil
	})

	sdk.AddTool(s, &sdk.Tool{
		Name:        "say",
		Description: "Queue text for playback in the active voice session.",
	}, func(ctx context.Context, _ *sdk.CallToolRequest, args SayArgs) (*sdk.CallToolResult, SayResult, error) {
		if err := ctrl.Say(args.Text); err != nil {
			return nil, SayResult{}, err
		}
		logging.InfowCtx(ctx, "operator queued speech", "chars", len(args.Text))
		return nil, SayResult{Queued: true}, nil
	})

	return s
}

// WebSocketHandler upgrades each request and serves one MCP session on it.
func WebSocketHandler(server *sdk.Server) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp websocket upgrade failed", "err", err)
			return
		}
		go func() {
			ss, err := server.Connect(context.Background(), NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Warnw("mcp server connect failed", "err", err)
				_ = conn.Close()
				return
			}
			if err := ss.Wait(); err != nil {
				logging.Debugw("mcp session ended", "err", err)
				return
			}
			logging.Debugw("mcp session ended")
		}()
	})
}
