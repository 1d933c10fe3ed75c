package app

import (
	"fmt"
	"net/http"
	"os"

	"commcore/internal/config"
	"commcore/internal/log"
	"commcore/internal/relay"
	"commcore/internal/services/account"
	"commcore/internal/services/auth"
	"commcore/internal/services/message"
	"commcore/internal/services/session"
	"commcore/internal/store"
)

// New builds the App for cfg, which must carry a Client section. Saved
// credentials, if any, supply the relay access token.
func New(cfg *config.Config, httpClient *http.Client) (*App, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("app: no [Client] section in config")
	}
	home := cfg.Client.Home
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, err
	}

	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}

	// File-based stores
	keyStore := store.NewPickleKeyFileStore(home)
	accountStore := store.NewAccountFileStore(home)
	sessionStore := store.NewSessionFileStore(home)
	credStore := store.NewCredentialFileStore(home)

	rc := relay.NewHTTPClient(cfg.Client.RelayURL)
	if httpClient != nil {
		rc.HTTP = httpClient
	}
	creds, ok, err := credStore.LoadCredentials()
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if ok {
		rc.SetToken(creds.AccessToken)
	}

	// High-level services
	accountSvc := account.New(keyStore, accountStore, rc, backend.GetLogger("account"))
	sessionSvc := session.New(accountSvc, sessionStore, rc, backend.GetLogger("session"))
	messageSvc := message.New(accountSvc, sessionSvc, rc, backend.GetLogger("message"))
	authSvc := auth.New(rc, cfg.OpaqueConfig(), backend.GetLogger("auth"))

	return &App{
		Config:      cfg,
		Log:         backend,
		Relay:       rc,
		Credentials: credStore,
		Accounts:    accountSvc,
		Sessions:    sessionSvc,
		Messages:    messageSvc,
		Auth:        authSvc,
	}, nil
}
