// Command voicectl talks to a running bot's admin MCP endpoint.
//
//	voicectl status
//	voicectl history <user-id>
//	voicectl say <text...>
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/georgedobreff/discord-llm-bot/internal/mcp"
)

func main() {
	addr := flag.String("addr", "ws://127.0.0.1:8080/mcp/ws", "admin MCP websocket URL")
	token := flag.String("token", os.Getenv("ADMIN_TOKEN"), "admin bearer token (default $ADMIN_TOKEN)")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: voicectl [flags] status | history <user-id> | say <text>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	tool, args, err := toolCall(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := mcp.NewClient("voicectl", "dev")
	c.Token = *token
	if err := c.Dial(ctx, *addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	raw, err := c.Call(ctx, tool, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var out bytes.Buffer
	if json.Indent(&out, raw, "", "  ") != nil {
		out.Reset()
		out.Write(raw)
	}
	fmt.Println(out.String())
}

// toolCall maps command line arguments to an MCP tool and its arguments.
func toolCall(argv []string) (string, map[string]any, error) {
	if len(argv) == 0 {
		return "", nil, fmt.Errorf("missing command")
	}
	switch argv[0] {
	case "status":
		return "session_status", nil, nil
	case "history":
		if len(argv) != 2 {
			return "", nil, fmt.Errorf("history takes exactly one user id")
		}
		return "voice_history", map[string]any{"user_id": argv[1]}, nil
	case "say":
		text := strings.TrimSpace(strings.Join(argv[1:], " "))
		if text == "" {
			return "", nil, fmt.Errorf("say needs some text")
		}
		return "say", map[string]any{"text": text}, nil
	}
	return "", nil, fmt.Errorf("unknown command %q", argv[0])
}
