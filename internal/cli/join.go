package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJoinCmd() *cobra.Command {
	var (
		passcode string
		connect  bool
	)

	cmd := &cobra.Command{
		Use:   "join <code> <name>",
		Short: "Reserve a seat in a lobby",
		Long: `Send a join request for a lobby. The server holds the seat for this
machine's address for a short while; open the player channel with
"partygate connect <code>" (or pass --connect) before it expires.

The join token is saved to the token file for the connect command.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, name := args[0], args[1]

			req := map[string]string{"display_name": name}
			if passcode != "" {
				req["passcode"] = passcode
			}

			var result JoinTicket

			if err := client.Post(fmt.Sprintf("/api/v1/lobbies/%s/join", code), req, &result); err != nil {
				return err
			}

			if err := cfg.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			out := NewOutput(cfg.Output)
			out.Print(result)

			if connect {
				return runConnect(cmd.Context(), result.GameCode, result.Token, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&passcode, "passcode", "", "Lobby passcode")
	cmd.Flags().BoolVar(&connect, "connect", false, "Open the player channel straight away")

	return cmd
}
