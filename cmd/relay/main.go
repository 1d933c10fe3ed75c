package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"commcore/internal/config"
	"commcore/internal/log"
	"commcore/internal/protocol/opaque"
	"commcore/internal/relay"
	"commcore/internal/services/auth"
	"commcore/internal/store"
)

const tokenKeyFile = "token.key"

func main() {
	var configFile string
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Run the commcore relay and identity server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			if cfg.Server == nil {
				return errors.New("config has no [Server] section")
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "relay.toml", "TOML config file")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger := backend.GetLogger("relay")

	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		return err
	}

	oc := cfg.OpaqueConfig()
	setupBytes, err := store.LoadOrCreateFile(cfg.Server.SetupPath(), 0o600, func() ([]byte, error) {
		s, err := opaque.NewServerSetup(oc)
		if err != nil {
			return nil, err
		}
		logger.Notice("generated new OPAQUE server setup")
		return s.MarshalBinary()
	})
	if err != nil {
		return fmt.Errorf("server setup: %w", err)
	}
	setup, err := opaque.UnmarshalServerSetup(oc, setupBytes)
	if err != nil {
		return fmt.Errorf("server setup: %w", err)
	}

	tokenKey, err := store.LoadOrCreateFile(filepath.Join(cfg.Server.DataDir, tokenKeyFile), 0o600, func() ([]byte, error) {
		k := make([]byte, 32)
		_, err := io.ReadFull(rand.Reader, k)
		return k, err
	})
	if err != nil {
		return fmt.Errorf("token key: %w", err)
	}

	files, err := store.OpenBoltPasswordStore(cfg.Server.DatabasePath())
	if err != nil {
		return err
	}
	defer files.Close()

	tokens := auth.NewTokens(tokenKey, cfg.Server.TokenTTL)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := relay.NewServer(
		relay.NewHub(cfg.Server.MailboxSize),
		auth.NewServer(setup, files, tokens, cfg.Server.LoginTTL, backend.GetLogger("auth")),
		tokens,
		reg,
		logger,
	)

	errLog, err := backend.GetGoLogger("http", "WARNING")
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Routes(),
		ErrorLog:          errLog,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				if err := backend.Rotate(); err != nil {
					logger.Errorf("rotate log: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Noticef("relay listening on %s", cfg.Server.Address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Notice("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
