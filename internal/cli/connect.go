package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const (
	messageChallenge         = "challenge-for-credentials"
	messageSubmitCredentials = "submit-credentials"
	messageIntentionalLeave  = "intentional-leave"
)

// credentialsMessage answers the server's challenge
type credentialsMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	GameCode string `json:"gamecode,omitempty"`
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <code>",
		Short: "Open the player channel for a reserved seat",
		Long: `Dial the lobby's websocket, answer the credential challenge with the
join token and print every message the server sends.

Press Ctrl+C to leave the game.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" {
				return errors.New("no join token: run \"partygate join\" first or pass --token")
			}
			return runConnect(cmd.Context(), args[0], cfg.Token, NewOutput(cfg.Output))
		},
	}
}

func runConnect(ctx context.Context, code, token string, out *Output) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url := client.WebsocketURL(fmt.Sprintf("/api/v1/lobbies/%s/ws", code))
	err := connectChannel(ctx, url, token, out.Print)
	if errors.Is(err, context.Canceled) {
		out.PrintMessage("Left the game")
		return nil
	}
	return err
}

// connectChannel runs a player channel until the server closes it or ctx is
// done. On cancellation it tells the server the player left on purpose.
func connectChannel(ctx context.Context, url, token string, handle func(any)) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket handshake failed: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	messages := make(chan ChannelMessage)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			var msg ChannelMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case messages <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-messages:
			handle(msg)
			if msg.Type == messageChallenge {
				answer := credentialsMessage{Type: messageSubmitCredentials, Token: token, GameCode: msg.GameCode}
				if err := conn.WriteJSON(answer); err != nil {
					return fmt.Errorf("failed to submit credentials: %w", err)
				}
			}

		case err := <-readErr:
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				handle(ChannelMessage{Type: "closed", Reasons: nonEmpty(closeErr.Text)})
				return nil
			}
			return fmt.Errorf("channel error: %w", err)

		case <-ctx.Done():
			_ = conn.WriteJSON(map[string]string{"type": messageIntentionalLeave})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()
		}
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
