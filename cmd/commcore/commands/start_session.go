package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"commcore/internal/domain"
)

// startSessionCmd claims one of the peer's one-time keys and stores a new
// outbound session for future messaging.
func startSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-session <peer>",
		Short: "Establish a secure session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			peer := domain.Username(args[0])
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			rec, err := appCtx.Sessions.InitiateSession(ctx, passphrase, peer)
			if err != nil {
				return fmt.Errorf("starting session with %q: %w", peer, err)
			}
			fmt.Printf("Session %s created with %s.\n", rec.SessionID, peer)
			return nil
		},
	}
}
