package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage published one-time and fallback keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "publish",
			Short: "Generate one-time keys and upload them to the relay",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requirePassphrase(); err != nil {
					return err
				}
				if _, err := appCtx.Accounts.GenerateOneTimeKeys(passphrase, appCtx.Config.Client.OneTimeKeys); err != nil {
					return err
				}
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				bundle, err := appCtx.Accounts.PublishKeys(ctx, passphrase)
				if err != nil {
					return err
				}
				fmt.Printf("Published %d one-time keys.\n", len(bundle.OneTimeKeys))
				return nil
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Replace the fallback key and publish it",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requirePassphrase(); err != nil {
					return err
				}
				if err := appCtx.Accounts.RotateFallbackKey(passphrase); err != nil {
					return err
				}
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				if _, err := appCtx.Accounts.PublishKeys(ctx, passphrase); err != nil {
					return err
				}
				fmt.Println("Fallback key rotated.")
				return nil
			},
		},
	)
	return cmd
}
