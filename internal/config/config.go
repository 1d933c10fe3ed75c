// Package config loads the TOML configuration shared by the commcore CLI
// and the relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"commcore/internal/log"
	"commcore/internal/protocol/opaque"
)

const (
	defaultLogLevel    = "NOTICE"
	defaultRelayURL    = "http://127.0.0.1:8080"
	defaultOneTimeKeys = 20
	defaultAddress     = "127.0.0.1:8080"
	defaultSetupFile   = "opaque_setup.bin"
	defaultTokenTTL    = 24 * time.Hour
	defaultContext     = "commcore-v1"
)

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stderr will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (l *Logging) validate() error {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if !log.ValidLevel(l.Level) {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", l.Level)
	}
	l.Level = strings.ToUpper(l.Level)
	return nil
}

// Client is the device configuration.
type Client struct {
	// Home is the directory holding the account, sessions and credentials.
	Home string

	// RelayURL is the base URL of the relay.
	RelayURL string

	// Username is the default identity for commands that need one.
	Username string

	// OneTimeKeys is the pool size kept published on the relay.
	OneTimeKeys int
}

func (c *Client) validate() error {
	if c.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: Client: Home not set: %w", err)
		}
		c.Home = filepath.Join(home, ".commcore")
	}
	if c.RelayURL == "" {
		c.RelayURL = defaultRelayURL
	}
	if c.OneTimeKeys == 0 {
		c.OneTimeKeys = defaultOneTimeKeys
	}
	if c.OneTimeKeys < 0 || c.OneTimeKeys > 100 {
		return fmt.Errorf("config: Client: OneTimeKeys %d out of range", c.OneTimeKeys)
	}
	return nil
}

// Server is the relay configuration.
type Server struct {
	// Address is the listen address.
	Address string

	// DataDir holds the password file database and the OPAQUE setup.
	DataDir string

	// SetupFile is the OPAQUE server setup, relative to DataDir. It is
	// created on first start.
	SetupFile string

	// MailboxSize caps each user's queue.
	MailboxSize int

	// LoginTTL bounds how long a started login may wait for its finish.
	LoginTTL time.Duration

	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration
}

func (s *Server) validate() error {
	if s.Address == "" {
		s.Address = defaultAddress
	}
	if s.DataDir == "" {
		return errors.New("config: Server: DataDir is not set")
	}
	if s.SetupFile == "" {
		s.SetupFile = defaultSetupFile
	}
	if s.TokenTTL == 0 {
		s.TokenTTL = defaultTokenTTL
	}
	if s.MailboxSize < 0 || s.LoginTTL < 0 || s.TokenTTL < 0 {
		return errors.New("config: Server: negative limits are invalid")
	}
	return nil
}

// SetupPath resolves SetupFile against DataDir.
func (s *Server) SetupPath() string {
	if filepath.IsAbs(s.SetupFile) {
		return s.SetupFile
	}
	return filepath.Join(s.DataDir, s.SetupFile)
}

// DatabasePath is the password file database inside DataDir.
func (s *Server) DatabasePath() string {
	return filepath.Join(s.DataDir, "passwords.db")
}

// Opaque holds the OPAQUE parameters. Client and relay must agree on all of
// them.
type Opaque struct {
	Context         string
	Argon2Time      uint32
	Argon2MemoryKiB uint32
	Argon2Threads   uint8
}

func (o *Opaque) validate() error {
	if o.Context == "" {
		o.Context = defaultContext
	}
	if o.Argon2Time == 0 {
		o.Argon2Time = opaque.DefaultKSF.Time
	}
	if o.Argon2MemoryKiB == 0 {
		o.Argon2MemoryKiB = opaque.DefaultKSF.MemoryKiB
	}
	if o.Argon2Threads == 0 {
		o.Argon2Threads = opaque.DefaultKSF.Threads
	}
	if o.Argon2MemoryKiB < 8*uint32(o.Argon2Threads) {
		return fmt.Errorf("config: Opaque: Argon2MemoryKiB must be at least 8 per thread")
	}
	return nil
}

// Config is the top level configuration.
type Config struct {
	Logging *Logging
	Client  *Client
	Server  *Server
	Opaque  *Opaque
}

// Default returns a client configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{Client: &Client{}}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies defaults and checks the sections that are present.
// Logging and Opaque are always filled in.
func (c *Config) Validate() error {
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if c.Opaque == nil {
		c.Opaque = &Opaque{}
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Opaque.validate(); err != nil {
		return err
	}
	if c.Client != nil {
		if err := c.Client.validate(); err != nil {
			return err
		}
	}
	if c.Server != nil {
		if err := c.Server.validate(); err != nil {
			return err
		}
	}
	if c.Client == nil && c.Server == nil {
		return errors.New("config: neither Client nor Server is configured")
	}
	return nil
}

// OpaqueConfig returns the opaque.Config these settings describe.
func (c *Config) OpaqueConfig() opaque.Config {
	cfg := opaque.DefaultConfig(c.Opaque.Context)
	cfg.KSF = opaque.KSFParams{
		Time:      c.Opaque.Argon2Time,
		MemoryKiB: c.Opaque.Argon2MemoryKiB,
		Threads:   c.Opaque.Argon2Threads,
	}
	return cfg
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
