package domain

import (
	interfaces "commcore/internal/domain/interfaces"
	types "commcore/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username              = types.Username
	Fingerprint           = types.Fingerprint
	SessionID             = types.SessionID
	KeyID                 = types.KeyID
	IdentityKeys          = types.IdentityKeys
	OneTimeKey            = types.OneTimeKey
	KeyBundle             = types.KeyBundle
	ClaimedKeys           = types.ClaimedKeys
	Envelope              = types.Envelope
	DecryptedMessage      = types.DecryptedMessage
	SessionRecord         = types.SessionRecord
	AccountProfile        = types.AccountProfile
	AccountRecord         = types.AccountRecord
	RegisterStartRequest  = types.RegisterStartRequest
	RegisterStartResponse = types.RegisterStartResponse
	RegisterFinishRequest = types.RegisterFinishRequest
	LoginStartRequest     = types.LoginStartRequest
	LoginStartResponse    = types.LoginStartResponse
	LoginFinishRequest    = types.LoginFinishRequest
	LoginFinishResponse   = types.LoginFinishResponse
	Credentials           = types.Credentials
	X25519Public          = types.X25519Public
	X25519Private         = types.X25519Private
	X25519KeyPair         = types.X25519KeyPair
	Ed25519Public         = types.Ed25519Public
	Ed25519Private        = types.Ed25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	AccountService    = interfaces.AccountService
	SessionService    = interfaces.SessionService
	MessageService    = interfaces.MessageService
	AuthService       = interfaces.AuthService
	RelayClient       = interfaces.RelayClient
	AuthClient        = interfaces.AuthClient
	PickleKeyStore    = interfaces.PickleKeyStore
	AccountStore      = interfaces.AccountStore
	SessionStore      = interfaces.SessionStore
	PasswordFileStore = interfaces.PasswordFileStore
	CredentialStore   = interfaces.CredentialStore
)
