package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type wsFrame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatTokenValue == "" {
		return errors.New("a tenant token is required (--token or SUPPORTBOT_TOKEN)")
	}

	u, err := url.Parse(chatServerURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	q.Set("token", chatTokenValue)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", chatServerURL, err)
	}
	defer conn.Close()

	content, _ := json.Marshal(map[string]string{
		"message":   args[0],
		"botId":     chatBotID,
		"sessionId": chatSessionID,
	})
	if err := conn.WriteJSON(wsFrame{Type: "chat", Content: content}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read reply: %w", err)
		}

		switch frame.Type {
		case "reply":
			var reply struct {
				Message    string `json:"message"`
				SessionID  string `json:"sessionId"`
				TokensUsed int    `json:"tokensUsed"`
			}
			if err := json.Unmarshal(frame.Content, &reply); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Message)
			fmt.Fprintf(out, "\nsession: %s  tokens: %d\n", reply.SessionID, reply.TokensUsed)
			return nil
		case "error":
			var body struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			_ = json.Unmarshal(frame.Content, &body)
			return fmt.Errorf("%s: %s", body.Code, body.Error)
		}
	}
}
