package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"commcore/internal/domain"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the local account and protect it with a passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			user, err := me()
			if err != nil {
				return err
			}
			_, fp, err := appCtx.Accounts.CreateAccount(passphrase, domain.AccountProfile{
				ServerURL: appCtx.Config.Client.RelayURL,
				Username:  user,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Account created for %s.\nFingerprint: %s\n", user, fp)
			return nil
		},
	}
}
