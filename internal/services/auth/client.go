package auth

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"commcore/internal/domain"
	"commcore/internal/protocol/opaque"
)

var (
	// ErrInvalidCredentials is the only error a user sees for a failed
	// login, whatever the cause.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrEmptyPassword is returned before any message is sent.
	ErrEmptyPassword = errors.New("password must not be empty")
)

// Service is the device side of OPAQUE.
type Service struct {
	client domain.AuthClient
	cfg    opaque.Config
	log    *logging.Logger
}

// New returns a Service talking to client. cfg must match the relay's.
func New(client domain.AuthClient, cfg opaque.Config, log *logging.Logger) *Service {
	return &Service{client: client, cfg: cfg, log: log}
}

// identifiers binds the username as the client identity. The server
// identity defaults to the relay's public key. Server uses the same rule.
func identifiers(username domain.Username) opaque.Identifiers {
	return opaque.Identifiers{Client: []byte(username)}
}

// Register runs the two-message registration flow.
func (s *Service) Register(ctx context.Context, username domain.Username, password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	st, req, err := opaque.ClientRegistrationStart(s.cfg, password)
	if err != nil {
		return err
	}
	resp, err := s.client.RegisterStart(ctx, domain.RegisterStartRequest{Username: username, Request: req})
	if err != nil {
		return fmt.Errorf("register start: %w", err)
	}
	res, err := st.Finish(password, resp.Response, identifiers(username))
	if err != nil {
		return fmt.Errorf("register finish: %w", err)
	}
	if err := s.client.RegisterFinish(ctx, domain.RegisterFinishRequest{Username: username, Upload: res.Upload}); err != nil {
		return fmt.Errorf("register upload: %w", err)
	}
	s.log.Noticef("registered %s", username)
	return nil
}

// Login runs the three-message login flow and checks the server's key
// confirmation. Authentication failures all surface as
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username domain.Username, password []byte) (domain.Credentials, error) {
	if len(password) == 0 {
		return domain.Credentials{}, ErrEmptyPassword
	}
	st, ke1, err := opaque.ClientLoginStart(s.cfg, password)
	if err != nil {
		return domain.Credentials{}, err
	}
	resp, err := s.client.LoginStart(ctx, domain.LoginStartRequest{Username: username, Request: ke1})
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("login start: %w", err)
	}
	res, err := st.Finish(resp.Response, identifiers(username))
	if err != nil {
		s.log.Debugf("login for %s rejected locally: %v", username, err)
		return domain.Credentials{}, ErrInvalidCredentials
	}
	fin, err := s.client.LoginFinish(ctx, domain.LoginFinishRequest{
		LoginID:      resp.LoginID,
		Finalization: res.Finalization,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return domain.Credentials{}, ErrInvalidCredentials
		}
		return domain.Credentials{}, fmt.Errorf("login finish: %w", err)
	}
	if !verifyConfirmation(res.SessionKey, fin.Confirmation) {
		return domain.Credentials{}, ErrInvalidCredentials
	}
	s.log.Infof("logged in as %s", username)
	return domain.Credentials{
		Username:    username,
		SessionKey:  res.SessionKey,
		AccessToken: fin.AccessToken,
		ExpiresUTC:  fin.ExpiresUTC,
	}, nil
}

// Compile-time assertion that Service implements domain.AuthService.
var _ domain.AuthService = (*Service)(nil)
