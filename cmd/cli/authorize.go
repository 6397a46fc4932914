package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/gate"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/fatih/color"
)

// authorizationHook prints where to connect the email account and polls the
// provider's status in the background until it reports connected or the
// gate's wait budget ends.
func authorizationHook(client capability.Client, g *gate.Gate, out io.Writer, interval time.Duration, logger types.Logger) gate.Hook {
	return func(ctx context.Context) error {
		status, err := client.EmailStatus(ctx)
		if err != nil {
			return fmt.Errorf("checking email connection status: %w", err)
		}
		if status.Connected {
			g.SetAuthorized(true)
			return nil
		}

		if status.AuthURL != "" {
			fmt.Fprintf(out, "%s %s\n", color.YellowString("Connect your email account:"), status.AuthURL)
		} else {
			fmt.Fprintln(out, color.YellowString("Connect your email account with your provider to continue."))
		}
		if deadline, ok := ctx.Deadline(); ok {
			fmt.Fprintf(out, "Waiting up to %s for the connection...\n", time.Until(deadline).Round(time.Second))
		}

		go pollEmailStatus(ctx, client, g, interval, logger)
		return nil
	}
}

func pollEmailStatus(ctx context.Context, client capability.Client, g *gate.Gate, interval time.Duration, logger types.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := client.EmailStatus(ctx)
			if err != nil {
				logger.Debug().Err(err).Msg("Email status check failed")
				continue
			}
			if status.Connected {
				logger.Info().Str("user_email", status.UserEmail).Msg("Email account connected")
				g.SetAuthorized(true)
				return
			}
		}
	}
}
