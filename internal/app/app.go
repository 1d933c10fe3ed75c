package app

import (
	"commcore/internal/config"
	"commcore/internal/log"
	"commcore/internal/relay"
	"commcore/internal/services/account"
	"commcore/internal/services/auth"
	"commcore/internal/services/message"
	"commcore/internal/services/session"
	"commcore/internal/store"
)

// App is the device-side dependency graph the CLI commands run against.
type App struct {
	Config      *config.Config
	Log         *log.Backend
	Relay       *relay.HTTPClient
	Credentials *store.CredentialFileStore

	Accounts *account.Service
	Sessions *session.Service
	Messages *message.Service
	Auth     *auth.Service
}

// Close releases the log backend.
func (a *App) Close() error {
	return a.Log.Close()
}
