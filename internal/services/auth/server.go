package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"commcore/internal/domain"
	"commcore/internal/protocol/opaque"
)

const (
	// DefaultLoginTTL bounds how long a started login may wait for KE3.
	DefaultLoginTTL = 2 * time.Minute

	maxUsernameLength = 64
)

var (
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already registered")

	// ErrInvalidUsername is returned for empty or oversized usernames.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrUnknownLogin is returned for a missing or expired login ID.
	ErrUnknownLogin = errors.New("unknown or expired login")
)

type pendingLogin struct {
	username domain.Username
	state    *opaque.ServerLogin
	expires  time.Time
}

// Server is the relay side of OPAQUE.
type Server struct {
	setup  *opaque.ServerSetup
	files  domain.PasswordFileStore
	tokens *Tokens
	ttl    time.Duration
	now    func() time.Time
	log    *logging.Logger

	mu      sync.Mutex
	pending map[string]pendingLogin
}

// NewServer returns a Server. ttl of zero means DefaultLoginTTL.
func NewServer(
	setup *opaque.ServerSetup,
	files domain.PasswordFileStore,
	tokens *Tokens,
	ttl time.Duration,
	log *logging.Logger,
) *Server {
	if ttl <= 0 {
		ttl = DefaultLoginTTL
	}
	return &Server{
		setup:   setup,
		files:   files,
		tokens:  tokens,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
		pending: make(map[string]pendingLogin),
	}
}

// RegisterStart evaluates the client's blinded password.
func (s *Server) RegisterStart(
	_ context.Context,
	req domain.RegisterStartRequest,
) (domain.RegisterStartResponse, error) {
	if !validUsername(req.Username) {
		return domain.RegisterStartResponse{}, ErrInvalidUsername
	}
	if _, ok, err := s.files.LoadPasswordFile(req.Username); err != nil {
		return domain.RegisterStartResponse{}, err
	} else if ok {
		return domain.RegisterStartResponse{}, ErrUsernameTaken
	}
	resp, err := opaque.ServerRegistrationStart(s.setup, req.Request, []byte(req.Username))
	if err != nil {
		return domain.RegisterStartResponse{}, err
	}
	return domain.RegisterStartResponse{Response: resp}, nil
}

// RegisterFinish stores the password file built from the client's upload.
func (s *Server) RegisterFinish(_ context.Context, req domain.RegisterFinishRequest) error {
	if !validUsername(req.Username) {
		return ErrInvalidUsername
	}
	file, err := opaque.ServerRegistrationFinish(req.Upload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok, err := s.files.LoadPasswordFile(req.Username); err != nil {
		return err
	} else if ok {
		return ErrUsernameTaken
	}
	if err := s.files.SavePasswordFile(req.Username, file); err != nil {
		return err
	}
	s.log.Noticef("registered %s", req.Username)
	return nil
}

// LoginStart answers KE1. Unknown users get a response of the same shape,
// so the only visible outcome is a failed LoginFinish.
func (s *Server) LoginStart(
	_ context.Context,
	req domain.LoginStartRequest,
) (domain.LoginStartResponse, error) {
	if !validUsername(req.Username) {
		return domain.LoginStartResponse{}, ErrInvalidUsername
	}
	file, _, err := s.files.LoadPasswordFile(req.Username)
	if err != nil {
		return domain.LoginStartResponse{}, err
	}
	st, ke2, err := opaque.ServerLoginStart(s.setup, file, req.Request, []byte(req.Username), identifiers(req.Username))
	if err != nil {
		return domain.LoginStartResponse{}, err
	}

	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	s.sweepLocked(now)
	s.pending[id] = pendingLogin{username: req.Username, state: st, expires: now.Add(s.ttl)}
	s.mu.Unlock()

	return domain.LoginStartResponse{LoginID: id, Response: ke2}, nil
}

// LoginFinish checks KE3 and, on success, returns the key confirmation and
// an access token. The pending login is removed either way.
func (s *Server) LoginFinish(
	_ context.Context,
	req domain.LoginFinishRequest,
) (domain.LoginFinishResponse, error) {
	s.mu.Lock()
	p, ok := s.pending[req.LoginID]
	delete(s.pending, req.LoginID)
	s.mu.Unlock()

	if !ok || s.now().After(p.expires) {
		return domain.LoginFinishResponse{}, ErrUnknownLogin
	}
	key, err := p.state.Finish(req.Finalization)
	if err != nil {
		s.log.Infof("login failed for %s", p.username)
		return domain.LoginFinishResponse{}, ErrInvalidCredentials
	}
	token, exp, err := s.tokens.Issue(p.username)
	if err != nil {
		return domain.LoginFinishResponse{}, err
	}
	s.log.Infof("login succeeded for %s", p.username)
	return domain.LoginFinishResponse{
		Confirmation: confirmation(key),
		AccessToken:  token,
		ExpiresUTC:   exp.Unix(),
	}, nil
}

// Pending reports the number of logins awaiting KE3.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	return len(s.pending)
}

func (s *Server) sweepLocked(now time.Time) {
	for id, p := range s.pending {
		if now.After(p.expires) {
			delete(s.pending, id)
		}
	}
}

func validUsername(u domain.Username) bool {
	return len(u) > 0 && len(u) <= maxUsernameLength
}

// Compile-time assertion that Server can stand in for a remote relay.
var _ domain.AuthClient = (*Server)(nil)

