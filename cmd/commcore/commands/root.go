package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"commcore/internal/app"
	"commcore/internal/domain"
)

const requestTimeout = 30 * time.Second

var (
	configFile string
	overrides  app.Overrides
	passphrase string
	appCtx     *app.App
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "commcore",
		Short:         "End-to-end encrypted messaging client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configFile, overrides)
			if err != nil {
				return err
			}
			appCtx, err = app.New(cfg, nil)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx != nil {
				return appCtx.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML config file")
	root.PersistentFlags().StringVar(&overrides.Home, "home", "", "data dir (default ~/.commcore)")
	root.PersistentFlags().StringVar(&overrides.RelayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVarP(&overrides.Username, "username", "u", "", "relay username")
	root.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "ERROR, WARNING, NOTICE, INFO or DEBUG")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the local account")

	root.AddCommand(
		signupCmd(),
		loginCmd(),
		initCmd(),
		fingerprintCmd(),
		keysCmd(),
		startSessionCmd(),
		sendCmd(),
		recvCmd(),
	)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func requirePassphrase() error {
	if passphrase == "" {
		return errors.New("passphrase required (-p)")
	}
	return nil
}

// me is the username of the local account, falling back to the configured
// one before an account exists.
func me() (domain.Username, error) {
	if p, err := appCtx.Accounts.Profile(); err == nil && p.Username != "" {
		return p.Username, nil
	}
	if u := appCtx.Config.Client.Username; u != "" {
		return domain.Username(u), nil
	}
	return "", errors.New("username required (-u)")
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}
