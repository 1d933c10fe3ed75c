package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// recv: fetch and decrypt queued messages.
func recvCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			user, err := me()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			msgs, err := appCtx.Messages.ReceiveMessage(ctx, passphrase, user, limit)
			for _, m := range msgs {
				ts := time.Unix(m.Timestamp, 0).Format(time.DateTime)
				fmt.Printf("%s [%s] %s\n", ts, m.From, string(m.Plaintext))
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum messages to fetch (0 for all)")
	return cmd
}
