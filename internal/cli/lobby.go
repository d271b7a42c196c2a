package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newLobbyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lobby",
		Short: "Lobby management commands",
	}

	cmd.AddCommand(newLobbyCreateCmd())
	cmd.AddCommand(newLobbyGetCmd())
	cmd.AddCommand(newLobbyListCmd())
	cmd.AddCommand(newLobbyStartCmd())
	cmd.AddCommand(newLobbyKickCmd())
	cmd.AddCommand(newLobbyDeleteCmd())

	return cmd
}

func newLobbyCreateCmd() *cobra.Command {
	var (
		maxPlayers          int
		passcode            string
		noReconnects        bool
		noPregameReconnects bool
		spectatorReconnects bool
		killDisconnected    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new lobby",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{}
			if maxPlayers > 0 {
				req["max_players"] = maxPlayers
			}
			if passcode != "" {
				req["passcode"] = passcode
			}
			// Only send the knobs that were set, so the server defaults apply otherwise
			if cmd.Flags().Changed("no-reconnects") {
				req["allow_reconnects"] = !noReconnects
			}
			if cmd.Flags().Changed("no-pregame-reconnects") {
				req["allow_pregame_reconnects"] = !noPregameReconnects
			}
			if cmd.Flags().Changed("spectator-reconnects") {
				req["allow_spectator_reconnects"] = spectatorReconnects
			}
			if cmd.Flags().Changed("kill-disconnected") {
				req["kill_disconnected_players"] = killDisconnected
			}

			var result Lobby

			if err := client.Post("/api/v1/lobbies", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxPlayers, "max-players", 0, "Maximum players (default: server default)")
	cmd.Flags().StringVar(&passcode, "passcode", "", "Passcode required to join")
	cmd.Flags().BoolVar(&noReconnects, "no-reconnects", false, "Remove players as soon as they disconnect")
	cmd.Flags().BoolVar(&noPregameReconnects, "no-pregame-reconnects", false, "Remove players who disconnect before the game starts")
	cmd.Flags().BoolVar(&spectatorReconnects, "spectator-reconnects", false, "Let spectators reconnect")
	cmd.Flags().BoolVar(&killDisconnected, "kill-disconnected", false, "Eliminate players who disconnect mid-game")

	return cmd
}

func newLobbyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <code>",
		Short: "Get lobby details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]

			var result Lobby

			if err := client.Get(fmt.Sprintf("/api/v1/lobbies/%s", code), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newLobbyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List lobby codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result LobbyList

			if err := client.Get("/api/v1/lobbies", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newLobbyStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <code>",
		Short: "Start the game; later joiners become spectators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]

			var result Lobby

			if err := client.Post(fmt.Sprintf("/api/v1/lobbies/%s/start", code), nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newLobbyKickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kick <code> <name>",
		Short: "Remove a member or pending joiner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, name := args[0], args[1]

			if err := client.Delete(fmt.Sprintf("/api/v1/lobbies/%s/members/%s", code, url.PathEscape(name))); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage(fmt.Sprintf("Kicked %s from lobby %s", name, code))
			return nil
		},
	}
}

func newLobbyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a lobby, closing every connection to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]

			if err := client.Delete(fmt.Sprintf("/api/v1/lobbies/%s", code)); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage(fmt.Sprintf("Deleted lobby %s", code))
			return nil
		},
	}
}
