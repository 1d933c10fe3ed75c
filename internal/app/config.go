package app

import (
	"commcore/internal/config"
)

// Overrides are command-line values that win over the config file.
type Overrides struct {
	Home     string
	RelayURL string
	Username string
	LogLevel string
}

// LoadConfig reads file, or the defaults when file is empty, and applies o.
func LoadConfig(file string, o Overrides) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if file != "" {
		cfg, err = config.LoadFile(file)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		cfg.Client = &config.Client{}
	}
	if o.Home != "" {
		cfg.Client.Home = o.Home
	}
	if o.RelayURL != "" {
		cfg.Client.RelayURL = o.RelayURL
	}
	if o.Username != "" {
		cfg.Client.Username = o.Username
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return cfg, cfg.Validate()
}
