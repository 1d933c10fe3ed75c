package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var password string

// readPassword returns --password, or the first line of stdin.
func readPassword() ([]byte, error) {
	if password != "" {
		return []byte(password), nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, errors.New("empty password")
	}
	return []byte(line), nil
}

func signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register your username and password with the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			pw, err := readPassword()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := appCtx.Auth.Register(ctx, user, pw); err != nil {
				return err
			}
			fmt.Printf("Registered %s. Run login next.\n", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "relay password (read from stdin if omitted)")
	return cmd
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the relay and save the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := me()
			if err != nil {
				return err
			}
			pw, err := readPassword()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			creds, err := appCtx.Auth.Login(ctx, user, pw)
			if err != nil {
				return err
			}
			if err := appCtx.Credentials.SaveCredentials(creds); err != nil {
				return err
			}
			appCtx.Relay.SetToken(creds.AccessToken)
			fmt.Printf("Logged in as %s.\n", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "relay password (read from stdin if omitted)")
	return cmd
}
