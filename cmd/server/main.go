package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-identity-bridge/auth"
	"github.com/jrsteele09/go-identity-bridge/identity"
	"github.com/jrsteele09/go-identity-bridge/internal/config"
	"github.com/jrsteele09/go-identity-bridge/server"
	"github.com/jrsteele09/go-identity-bridge/sqlitestore"
	"github.com/jrsteele09/go-identity-bridge/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const sessionSweepInterval = time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := newLogger(c)
	displayAppname(c.GetAppName())

	store, err := sqlitestore.Open(filepath.Join(c.GetDataFolder(), "bridge.db"))
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer store.Close()

	verifier, err := identity.NewVerifier(identity.VerifierConfig{
		AuthorityBase: c.GetAuthorityBase(),
		Tenant:        c.GetProviderTenant(),
		Audience:      c.GetProviderAudience(),
		HTTPTimeout:   c.GetProviderTimeout(),
	}, logger)
	if err != nil {
		return errors.Wrap(err, "create verifier")
	}

	resolver, err := identity.NewResolver(store,
		identity.WithInstitutionalDomains(c.GetInstitutionalDomains()))
	if err != nil {
		return errors.Wrap(err, "create resolver")
	}

	signer, err := token.NewBridgeSigner(c.GetSigningSecret(), logger)
	if err != nil {
		return errors.Wrap(err, "create signer")
	}
	issuer, err := token.NewIssuer(signer, store, store, c.GetTokenIssuer(), logger,
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
		token.WithRefreshTokenLength(c.GetRefreshTokenLength()))
	if err != nil {
		return errors.Wrap(err, "create issuer")
	}

	authService, err := auth.NewService(verifier, resolver, issuer, logger)
	if err != nil {
		return errors.Wrap(err, "create auth service")
	}

	srv, err := server.New(c, authService, token.NewInspector(signer, c.GetTokenIssuer()), logger)
	if err != nil {
		return errors.Wrap(err, "create server")
	}

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweepExpiredSessions(sweeperCtx, store, logger)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func newLogger(c config.Config) zerolog.Logger {
	if c.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("listen and serve")
	}
}

// sweepExpiredSessions removes expired session rows so the store does not
// grow without bound; expiry itself is enforced on every refresh.
func sweepExpiredSessions(ctx context.Context, store *sqlitestore.Store, logger zerolog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.DeleteExpired(ctx, time.Now()); err != nil {
				logger.Warn().Err(err).Msg("session sweep failed")
			}
		}
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
