package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// healthPollInterval is how often --wait retries an unreachable server
const healthPollInterval = 500 * time.Millisecond

func newHealthCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `Check that the server is up and report how many lobbies have live connections.

With --wait, keep retrying until the server answers or the duration runs out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := waitHealthy(wait, healthPollInterval)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Retry for up to this long while the server is unreachable")

	return cmd
}

func waitHealthy(wait, interval time.Duration) (HealthResult, error) {
	deadline := time.Now().Add(wait)
	for {
		var result HealthResult
		err := client.Get("/api/v1/health", &result)
		if err == nil {
			return result, nil
		}
		if !time.Now().Add(interval).Before(deadline) {
			if wait > 0 {
				return HealthResult{}, fmt.Errorf("server not healthy after %s: %w", wait, err)
			}
			return HealthResult{}, err
		}
		time.Sleep(interval)
	}
}
